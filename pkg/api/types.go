package api

// v0 contains the public data model shared by the orchestrator, the hub
// client and the simulator.

// Target is one independently operable unit of work discovered from a remote
// listing (a controller project, a pulp repository).
type Target struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// OperationHandle is the result of successfully triggering a remote job.
// JobID is empty when the trigger signalled that there was nothing to do.
type OperationHandle struct {
	JobID  string `json:"job_id"`
	Target Target `json:"target"`
}

type StatusCode string

const (
	StatusPending    StatusCode = "pending"
	StatusWaiting    StatusCode = "waiting"
	StatusRunning    StatusCode = "running"
	StatusSuccessful StatusCode = "successful"
	StatusFailed     StatusCode = "failed"
	StatusError      StatusCode = "error"
	StatusCanceled   StatusCode = "canceled"
	StatusUnknown    StatusCode = "unknown"
)

// Succeeded reports whether s is the success terminal value.
func (s StatusCode) Succeeded() bool { return s == StatusSuccessful }

// Failed reports whether s belongs to the failure terminal family.
func (s StatusCode) Failed() bool {
	switch s {
	case StatusFailed, StatusError, StatusCanceled:
		return true
	}
	return false
}

// OperationStatus is a snapshot read from the remote system while polling.
type OperationStatus struct {
	JobID  string     `json:"job_id"`
	Status StatusCode `json:"status"`
	Failed bool       `json:"failed"`
}

// TriggerReply is the raw answer to a trigger call.
type TriggerReply struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// SyncResult is the final per-target record of a multi-target run.
type SyncResult struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}

// CollectionRef names one uploaded collection version.
type CollectionRef struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
}

func (c CollectionRef) String() string {
	return c.Namespace + "." + c.Name + ":" + c.Version
}
