package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bors-backend/internal/conversation"
	"bors-backend/internal/model"
	"bors-backend/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

const helpText = `Commands:
  /mode text|image     switch between chat and image generation
  /model [id]          show or pick the model for the current mode
  /ratio [id]          show or pick the image aspect ratio
  /system <prompt>     set and save the system prompt
  /attach <path>       attach an image to the next message
  /detach              drop the pending attachment
  /clear               clear the conversation
  /settings            show current settings
  /help                show this help
  /quit                exit
Enter sends, Esc focuses the conversation for scrolling.`

// UI is the terminal front end of one conversation Session.
type UI struct {
	app      *tview.Application
	session  *conversation.Session
	imageDir string

	header       *tview.TextView
	conversation *tview.TextView
	status       *tview.TextView
	input        *tview.TextArea

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	saved  map[string]string
	notice string
	aside  string
}

func New(session *conversation.Session, imageDir string) *UI {
	ctx, cancel := context.WithCancel(context.Background())
	u := &UI{
		app:      tview.NewApplication(),
		session:  session,
		imageDir: imageDir,
		ctx:      ctx,
		cancel:   cancel,
		saved:    make(map[string]string),
	}
	u.app.EnablePaste(true)
	u.app.EnableMouse(true)

	u.header = tview.NewTextView().SetDynamicColors(true)

	u.conversation = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	u.conversation.SetTitle("Bors AI").SetBorder(true)
	u.conversation.SetScrollable(true)

	u.status = tview.NewTextView().SetDynamicColors(true)

	u.input = tview.NewTextArea().SetPlaceholder("Message... (/help for commands)")
	u.input.SetTitle("Message").SetBorder(true)

	session.OnChange(func() {
		u.app.QueueUpdateDraw(u.render)
	})
	return u
}

// Run blocks until the user quits.
func (u *UI) Run() error {
	u.conversation.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter || event.Key() == tcell.KeyESC {
			u.app.SetFocus(u.input)
			return nil
		}
		return event
	})

	u.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyESC:
			u.app.SetFocus(u.conversation)
			return nil
		case tcell.KeyEnter:
			if event.Modifiers()&tcell.ModAlt != 0 {
				return event
			}
			line := u.input.GetText()
			u.input.SetText("", true)
			u.submit(line)
			return nil
		}
		return event
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.header, 1, 0, false).
		AddItem(u.conversation, 0, 1, false).
		AddItem(u.status, 1, 0, false).
		AddItem(u.input, 5, 0, true)

	u.render()
	defer u.cancel()
	return u.app.SetRoot(layout, true).SetFocus(u.input).Run()
}

func (u *UI) submit(line string) {
	u.mu.Lock()
	u.aside = ""
	u.mu.Unlock()

	if cmd, arg, ok := parseCommand(line); ok {
		u.command(cmd, arg)
		return
	}

	go func() {
		msg, err := u.session.Send(u.ctx, line)
		switch {
		case errors.Is(err, conversation.ErrEmptyInput):
			return
		case errors.Is(err, conversation.ErrSendInFlight):
			u.setNotice("[yellow]Still waiting for the previous reply.")
			return
		case errors.Is(err, conversation.ErrAttachmentInImageMode):
			u.setNotice("[yellow]Attachments only work in text mode. /detach or /mode text.")
			return
		case err != nil:
			// the failure message is already in the conversation
			return
		}

		if msg.IsImage() {
			path, err := saveImage(u.imageDir, msg)
			if err != nil {
				logger.WithFields(logrus.Fields{"dir": u.imageDir}).WithError(err).Error("save image")
				u.setNotice("[red]Could not save image: " + tview.Escape(err.Error()))
				return
			}
			u.mu.Lock()
			u.saved[msg.ID] = path
			u.mu.Unlock()
			u.setNotice("Image saved to " + tview.Escape(path))
		}
	}()
}

func (u *UI) command(cmd, arg string) {
	var err error
	switch cmd {
	case "/help":
		u.showText(helpText)
		return
	case "/quit", "/exit":
		u.cancel()
		u.app.Stop()
		return
	case "/mode":
		err = u.session.SetMode(conversation.Mode(arg))
	case "/model":
		err = u.pickModel(arg)
	case "/ratio":
		if arg == "" {
			u.showText(ratioList(u.session.Catalog().ImageRatios, u.session.Settings().ImageRatio))
			return
		}
		err = u.session.SetImageRatio(arg)
	case "/system":
		if arg == "" {
			u.showText("System prompt:\n" + u.session.Settings().SystemPrompt)
			return
		}
		if err = u.session.SetSystemPrompt(arg); err == nil {
			err = u.session.SaveSettings()
		}
		if err == nil {
			u.setNotice("System prompt saved.")
			return
		}
	case "/attach":
		var att conversation.Attachment
		if att, err = conversation.LoadAttachment(arg); err == nil {
			u.session.Attach(att)
		}
	case "/detach":
		u.session.Detach()
	case "/clear":
		err = u.session.Clear()
	case "/settings":
		u.showText(describeSettings(u.session.Settings(), u.session.Mode()))
		return
	default:
		err = fmt.Errorf("unknown command %s, try /help", cmd)
	}

	if err != nil {
		u.setNotice("[red]" + tview.Escape(err.Error()))
		return
	}
	u.setNotice("")
}

func (u *UI) pickModel(id string) error {
	settings := u.session.Settings()
	catalog := u.session.Catalog()
	if u.session.Mode() == conversation.ModeImage {
		if id == "" {
			u.showText(modelList("Image models", catalog.ImageModels, settings.ImageModel))
			return nil
		}
		return u.session.SetImageModel(id)
	}
	if id == "" {
		u.showText(modelList("Text models", catalog.TextModels, settings.TextModel))
		return nil
	}
	return u.session.SetTextModel(id)
}

// showText prints local output below the conversation without adding it to
// the history. It stays until the next submitted line.
func (u *UI) showText(text string) {
	u.mu.Lock()
	u.aside = text
	u.notice = ""
	u.mu.Unlock()
	u.app.QueueUpdateDraw(u.render)
}

func (u *UI) setNotice(text string) {
	u.mu.Lock()
	u.notice = text
	u.mu.Unlock()
	u.app.QueueUpdateDraw(u.render)
}

// render redraws everything from session state. Must run on the UI goroutine.
func (u *UI) render() {
	mode := u.session.Mode()
	u.header.SetText(fmt.Sprintf(" [::b]Bors AI[::-]  mode: [green]%s[-]  model: [green]%s[-]",
		mode, tview.Escape(u.session.ActiveModel())))

	u.mu.Lock()
	saved := make(map[string]string, len(u.saved))
	for k, v := range u.saved {
		saved[k] = v
	}
	notice, aside := u.notice, u.aside
	u.mu.Unlock()

	var b strings.Builder
	for _, m := range u.session.Messages() {
		b.WriteString(renderMessage(m, saved[m.ID]))
	}
	if u.session.Loading() {
		b.WriteString("[gray]Bors is typing...[-]\n")
	}
	if aside != "" {
		b.WriteString("[gray]" + tview.Escape(aside) + "[-]\n")
	}
	u.conversation.SetText(b.String())
	u.conversation.ScrollToEnd()

	status := notice
	if att := u.session.Attachment(); att != nil && status == "" {
		status = fmt.Sprintf("[blue]📎 %s (%d KB)[-]", tview.Escape(att.Name), att.Size/1024)
	}
	u.status.SetText(status)
	u.input.SetDisabled(u.session.Loading())
}

func renderMessage(m conversation.Message, savedPath string) string {
	var b strings.Builder
	switch m.Role {
	case "user":
		b.WriteString("[yellow::b]You[-::-]\n")
	default:
		b.WriteString("[green::b]Bors[-::-]\n")
	}
	if m.Content != "" {
		b.WriteString(tview.Escape(m.Content))
		b.WriteString("\n")
	}
	if m.ImageURL != "" && !m.IsImage() {
		b.WriteString("[blue]📎 image attached[-]\n")
	}
	if m.IsImage() {
		if savedPath != "" {
			b.WriteString("[blue]" + tview.Escape(savedPath) + "[-]\n")
		} else {
			b.WriteString("[blue]" + tview.Escape(fmt.Sprintf("[%s image, %d bytes]", m.ImageMIME, len(m.ImageData))) + "[-]\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// parseCommand splits "/cmd arg..." into its parts.
func parseCommand(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

// saveImage writes a generated image under dir and returns its path.
func saveImage(dir string, m conversation.Message) (string, error) {
	if len(m.ImageData) == 0 {
		return "", conversation.ErrNoImageData
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	ext := ".jpg"
	if mt := mimetype.Lookup(m.ImageMIME); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	path := filepath.Join(dir, "bors-"+m.ID+ext)
	if err := os.WriteFile(path, m.ImageData, 0644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func modelList(title string, ids []string, current string) string {
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, id := range ids {
		marker := "  "
		if id == current {
			marker = "* "
		}
		b.WriteString(marker + id + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func ratioList(ratios []model.RatioOption, current string) string {
	var b strings.Builder
	b.WriteString("Aspect ratios:\n")
	for _, r := range ratios {
		marker := "  "
		if r.ID == current {
			marker = "* "
		}
		b.WriteString(fmt.Sprintf("%s%-5s %s\n", marker, r.ID, r.Name))
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeSettings(s model.Settings, mode conversation.Mode) string {
	return fmt.Sprintf("Mode: %s\nText model: %s\nImage model: %s\nAspect ratio: %s\nSystem prompt: %s",
		mode, s.TextModel, s.ImageModel, s.ImageRatio, s.SystemPrompt)
}
