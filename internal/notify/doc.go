// Package notify turns diff results into per-product messages and delivers
// them through a Notifier.
//
// # Aggregation
//
// Every changed product yields exactly one Message that lists all of its
// reasons in a fixed order (new listing, price change, restock, stock
// increase). Messages are ordered by key.
//
// # Delivery
//
// Dispatcher sends messages one at a time, spaced by a configured interval.
// A failed message is logged and counted; the remaining messages are still
// sent. Nothing is retried.
package notify
