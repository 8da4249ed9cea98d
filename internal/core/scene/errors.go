package scene

import "errors"

// Scene-level errors
var (
	ErrEmptyName         = errors.New("entity name is empty")
	ErrNameTaken         = errors.New("entity name already in use")
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrUnknownAction     = errors.New("action not recognized")
	ErrBadParameters     = errors.New("bad action parameters")
	ErrNotRenderable     = errors.New("scene not renderable: need at least one camera and one light")
	ErrBackend           = errors.New("backend failure")
	ErrSingularTransform = errors.New("transform is not invertible")
	ErrWrongCategory     = errors.New("entity belongs to another registry")
)
