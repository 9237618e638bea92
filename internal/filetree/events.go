package filetree

// Event types published after successful mutations.
const (
	EventFileWritten       = "file.written"
	EventFileDeleted       = "file.deleted"
	EventFolderCreated     = "folder.created"
	EventFolderDeleted     = "folder.deleted"
	EventFolderCopied      = "folder.copied"
	EventVisibilityChanged = "visibility.changed"
	EventReconciled        = "tree.reconciled"
)

// Event describes a change inside one user's tree.
type Event struct {
	Type   string `json:"type"`
	Path   string `json:"path,omitempty"`
	Dest   string `json:"dest,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// Notifier receives change events for a user. Implementations must not block.
type Notifier interface {
	Notify(userID string, ev Event)
}

// OpRecorder receives the outcome of every service operation.
type OpRecorder interface {
	ObserveOp(op string, err error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Event) {}

type nopRecorder struct{}

func (nopRecorder) ObserveOp(string, error) {}
