package model

// Worker represents an ephemeral build host provisioned by the service
type Worker struct {
	Slug       string `json:"slug"`
	IsReady    bool   `json:"is_ready"`
	SSHKey     string `json:"ssh_key" masq:"secret"`
	SSHKeyName string `json:"ssh_key_name"`
	PublicIP   string `json:"public_ip"`
}

// KeyFileName returns the local file name the worker private key is persisted to
func (w *Worker) KeyFileName() string {
	return w.SSHKeyName + ".pem"
}

// LaunchWorkerResponse is returned when a build worker is requested
type LaunchWorkerResponse struct {
	Build string  `json:"build"` // Worker slug
	Log   *string `json:"log"`   // Execution log slug, nil when the worker is already running
}

// LogSlug returns the execution log slug or empty string if none was returned
func (r *LaunchWorkerResponse) LogSlug() string {
	if r.Log == nil {
		return ""
	}
	return *r.Log
}
