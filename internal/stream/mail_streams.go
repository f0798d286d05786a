// Package stream defines the task queues and the job envelope shared
// by the producer and the worker.
package stream

// Stream names. Initial downloads run on their own stream so a large
// mailbox bootstrap cannot starve incremental traffic.
const (
	StreamSyncAccount = "mail:sync_account"
	StreamSyncMessage = "mail:sync_message"
	StreamFirstSync   = "mail:first_sync"
	StreamHistory     = "mail:history"
	StreamEditLabels  = "mail:edit_labels"
	StreamTrash       = "mail:trash_message"
	StreamDelete      = "mail:delete_message"
	StreamSend        = "mail:send_message"
)

// AllStreams lists every stream a worker consumes.
func AllStreams() []string {
	return []string{
		StreamSyncAccount,
		StreamSyncMessage,
		StreamFirstSync,
		StreamHistory,
		StreamEditLabels,
		StreamTrash,
		StreamDelete,
		StreamSend,
	}
}
