package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"warren"
	"warren/internal/console"
	"warren/table"
)

func registerStoreCommands(ctx context.Context, reg console.CommandRegistrar, store *warren.Store) {
	if store == nil {
		return
	}

	reg.Register("/buckets", console.Command{
		Help:    "list live buckets",
		Handler: handleBuckets(store),
	})

	reg.Register("/create", console.Command{
		Usage:   "/create <bucket> [shards]",
		Help:    "start a new bucket",
		Handler: handleCreate(ctx, store),
	})

	reg.Register("/drop", console.Command{
		Usage:   "/drop <bucket>",
		Help:    "stop a bucket and discard its keys",
		Handler: handleDrop(store),
	})

	reg.Register("/put", console.Command{
		Usage:   "/put <bucket> <key> <value>",
		Help:    "store a value under a key",
		Handler: handlePut(store),
	})

	reg.Register("/putnew", console.Command{
		Usage:   "/putnew <bucket> <key> <value>",
		Help:    "store a value only if the key is absent",
		Handler: handlePutNew(store),
	})

	reg.Register("/get", console.Command{
		Usage:   "/get <bucket> <key>",
		Help:    "read the value under a key",
		Handler: handleGet(store),
	})

	reg.Register("/del", console.Command{
		Usage:   "/del <bucket> <key>",
		Help:    "delete a key",
		Handler: handleDel(store),
	})

	reg.Register("/exists", console.Command{
		Usage:   "/exists <bucket> <key>",
		Help:    "check whether a key holds a value",
		Handler: handleExists(store),
	})

	reg.Register("/keys", console.Command{
		Usage:   "/keys <bucket>",
		Help:    "list a bucket's keys",
		Handler: handleKeys(store),
	})

	reg.Register("/all", console.Command{
		Usage:   "/all <bucket>",
		Help:    "dump a bucket's entries",
		Handler: handleAll(store),
	})

	reg.Register("/stats", console.Command{
		Help:    "show store counters",
		Handler: handleStats(store),
	})
}

func handleBuckets(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		names := store.Buckets()
		if len(names) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Buckets: (none)")
			return false
		}
		_, _ = fmt.Fprintf(ctx.Terminal, "Buckets (%d):\r\n", len(names))
		for _, name := range names {
			n, err := store.Len(name)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "  %-20s %d keys\r\n", name, n)
		}
		return false
	}
}

func handleCreate(ctx context.Context, store *warren.Store) console.CommandHandler {
	return func(cctx console.CommandContext) bool {
		if len(cctx.Args) == 0 {
			_, _ = fmt.Fprintln(cctx.Terminal, "Usage: /create <bucket> [shards]")
			return false
		}
		var cfg table.Config
		if len(cctx.Args) > 1 {
			shards, err := strconv.Atoi(cctx.Args[1])
			if err != nil {
				_, _ = fmt.Fprintf(cctx.Terminal, "Invalid shard count %q\r\n", cctx.Args[1])
				return false
			}
			cfg.Shards = shards
		}
		name := cctx.Args[0]
		if _, err := store.StartBucket(ctx, name, warren.BucketOptions{Table: cfg}); err != nil {
			_, _ = fmt.Fprintf(cctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		_, _ = fmt.Fprintf(cctx.Terminal, "Created bucket %q\r\n", name)
		return false
	}
}

func handleDrop(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /drop <bucket>")
			return false
		}
		name := ctx.Args[0]
		b, ok := store.Bucket(name)
		if !ok {
			_, _ = fmt.Fprintf(ctx.Terminal, "Unknown bucket: %s\r\n", name)
			return false
		}
		b.Stop()
		<-b.Done()
		_, _ = fmt.Fprintf(ctx.Terminal, "Dropped bucket %q\r\n", name)
		return false
	}
}

func handlePut(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) < 3 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /put <bucket> <key> <value>")
			return false
		}
		value := strings.Join(ctx.Args[2:], " ")
		if err := store.Put(ctx.Args[0], ctx.Args[1], value); err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		_, _ = fmt.Fprintln(ctx.Terminal, "OK")
		return false
	}
}

func handlePutNew(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) < 3 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /putnew <bucket> <key> <value>")
			return false
		}
		value := strings.Join(ctx.Args[2:], " ")
		ok, err := store.PutNew(ctx.Args[0], ctx.Args[1], value)
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		if !ok {
			_, _ = fmt.Fprintln(ctx.Terminal, "Key exists, not replaced")
			return false
		}
		_, _ = fmt.Fprintln(ctx.Terminal, "OK")
		return false
	}
}

func handleGet(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) < 2 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /get <bucket> <key>")
			return false
		}
		v, ok, err := store.Fetch(ctx.Args[0], ctx.Args[1])
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		if !ok {
			_, _ = fmt.Fprintf(ctx.Terminal, "%s: not found\r\n", ctx.Args[1])
			return false
		}
		_, _ = fmt.Fprintf(ctx.Terminal, "%s = %v\r\n", ctx.Args[1], v)
		return false
	}
}

func handleDel(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) < 2 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /del <bucket> <key>")
			return false
		}
		if err := store.Delete(ctx.Args[0], ctx.Args[1]); err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		_, _ = fmt.Fprintln(ctx.Terminal, "OK")
		return false
	}
}

func handleExists(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) < 2 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /exists <bucket> <key>")
			return false
		}
		ok, err := store.Exists(ctx.Args[0], ctx.Args[1])
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		_, _ = fmt.Fprintf(ctx.Terminal, "%t\r\n", ok)
		return false
	}
}

func handleKeys(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /keys <bucket>")
			return false
		}
		keys, err := store.Keys(ctx.Args[0])
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		if len(keys) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Keys: (none)")
			return false
		}
		_, _ = fmt.Fprintf(ctx.Terminal, "Keys (%d):\r\n", len(keys))
		for _, k := range keys {
			_, _ = fmt.Fprintf(ctx.Terminal, "  %s\r\n", k)
		}
		return false
	}
}

func handleAll(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		if len(ctx.Args) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /all <bucket>")
			return false
		}
		entries, err := store.All(ctx.Args[0])
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Terminal, "Error: %v\r\n", err)
			return false
		}
		if len(entries) == 0 {
			_, _ = fmt.Fprintln(ctx.Terminal, "Entries: (none)")
			return false
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Key < entries[j].Key
		})
		_, _ = fmt.Fprintf(ctx.Terminal, "Entries (%d):\r\n", len(entries))
		for _, e := range entries {
			_, _ = fmt.Fprintf(ctx.Terminal, "  %-20s = %v\r\n", e.Key, e.Value)
		}
		return false
	}
}

func handleStats(store *warren.Store) console.CommandHandler {
	return func(ctx console.CommandContext) bool {
		s := store.Stats()
		_, _ = fmt.Fprintf(ctx.Terminal, "Buckets:  %d\r\n", s.Buckets)
		_, _ = fmt.Fprintf(ctx.Terminal, "Watchers: %d\r\n", s.Watchers)
		_, _ = fmt.Fprintf(ctx.Terminal, "Events:   %d published, %d delivered, %d dropped\r\n",
			s.EventsPublished, s.EventsDelivered, s.EventsDropped)
		if len(s.Tables) == 0 {
			return false
		}
		names := make([]string, 0, len(s.Tables))
		for name := range s.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		_, _ = fmt.Fprintln(ctx.Terminal, "Tables:")
		for _, name := range names {
			ts := s.Tables[name]
			_, _ = fmt.Fprintf(ctx.Terminal, "  %-20s %d keys, %d gets, %d puts, %d deletes\r\n",
				name, ts.Keys, ts.Gets, ts.Puts+ts.PutNews, ts.Deletes)
		}
		return false
	}
}
