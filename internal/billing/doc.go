// Package billing holds the invoice side of the queue service: the models the
// jobs read and write, the amount calculation, the forwarded invoice commands
// and the two job handlers that render and email invoices.
package billing
