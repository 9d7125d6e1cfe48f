package handler

import "fmt"

type errUnknownRatio string

func (e errUnknownRatio) Error() string {
	return fmt.Sprintf("unknown image ratio %q", string(e))
}
