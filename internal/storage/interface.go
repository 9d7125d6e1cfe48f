package storage

// Storage is a small string key-value store, the client's counterpart of
// browser localStorage.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error

	Init() error
	Close() error
}
