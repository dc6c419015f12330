// Package txtlog implements the asynchronous text log pipeline.
//
// Submitters format a record and hand it to a bounded Queue without touching
// the disk. A single Writer drains the queue in FIFO order and appends each
// line to the open log file. Sequence numbers are assigned under the same
// critical section as the enqueue, so the order of lines in the file always
// matches sequence order.
package txtlog
