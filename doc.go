/*
Package warren is an in-process, named, concurrent key-value store with
change notification. Callers create independently named buckets, read and
write them from any number of goroutines, and watch single keys or whole
buckets for updates without polling.

Three concerns cooperate:

1. The registry (warren/registry) maps each bucket name to exactly one
live table and ties that mapping to the owning bucket's lifetime.

2. The table (warren/table) is the concurrent store itself, sharded so
that reads and writes never funnel through one lock or one goroutine.

3. The bus (warren/watch) fans mutation events out to watchers,
asynchronously and best-effort, so slow observers never slow writers.

A Bucket owns its table's lifecycle but mediates no access: the Store
resolves a name through the registry once per operation and then works on
the table directly. When a bucket's context ends or Stop is called, its
name is released and its table discarded; operations then fail with
ErrUnknownBucket.

Typical use:

	s := warren.New(warren.Options{})
	b, err := s.StartBucket(ctx, "sessions", warren.BucketOptions{})
	if err != nil {
		// name taken or invalid table config
	}
	defer b.Stop()

	s.Put("sessions", "sid-1", session)
	v, ok, _ := s.Fetch("sessions", "sid-1")

	w := s.WatchAll(ctx, "sessions")
	for ev := range w.Events() {
		// ev.Kind is watch.KindUpdated or watch.KindDeleted
	}

Watching a bucket that does not exist yet is allowed; events arrive once
something creates it and writes. Stop watching one topic with
Watcher.Unsubscribe, or everything at once with Watcher.Close; a watcher
whose context ends closes itself.
*/
package warren
