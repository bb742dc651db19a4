// Package federation delivers activities to remote inboxes.
//
// A broadcast serializes and signs an activity once, resolves the set of
// destination inboxes (shared inboxes preferred, local recipients and
// duplicates removed), then posts to every destination concurrently and
// waits for all attempts to settle. Only failures that leave no destination
// able to proceed are returned; everything else is reported through logs
// and DeliveryMetrics.
package federation
