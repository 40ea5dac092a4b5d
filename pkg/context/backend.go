package context

// Backend is the durable side of the Store. Each context is one record keyed
// by its id; writes replace the whole record.
type Backend interface {
	// Load returns the record for id. ok is false when it does not exist.
	Load(id string) (rec Record, ok bool, err error)
	Save(rec Record) error
	// List returns every stored record in the backend's enumeration order.
	List() ([]Record, error)
	Close() error
}
