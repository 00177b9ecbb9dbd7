package node

import (
	"context"
	"fmt"
	"sort"
)

// operationSchema declares every supported (resource, operation) pair. The
// registry is verified against it at construction so a missing handler fails
// fast instead of surfacing as an unknown-operation error mid-batch.
var operationSchema = map[string][]string{
	"draft":             {"create", "delete", "get", "send", "update"},
	"message":           {"delete", "get", "getAll", "getMime", "move", "reply", "send", "update"},
	"messageAttachment": {"add", "download", "get", "getAll"},
	"folder":            {"create", "delete", "get", "getAll", "getChildren", "update"},
	"folderMessage":     {"getAll"},
}

// handlerFunc executes one operation for item i. It returns the results to
// accumulate for that item; stop short-circuits the batch with what has been
// accumulated so far (bulk operations only).
type handlerFunc func(ctx context.Context, r *run, i int) (results []Result, stop bool, err error)

// mutateFunc enriches r.items[i] in place instead of producing results.
type mutateFunc func(ctx context.Context, r *run, i int) error

type definition struct {
	handle handlerFunc
	mutate mutateFunc
}

type registry struct {
	defs map[string]definition
}

func opKey(resource, operation string) string { return resource + "." + operation }

// newRegistry binds every declared pair to its handler and checks
// completeness in both directions.
func newRegistry() (*registry, error) {
	defs := map[string]definition{
		"draft.create": {handle: draftCreate},
		"draft.delete": {handle: messageDelete},
		"draft.get":    {handle: messageGet},
		"draft.send":   {handle: draftSend},
		"draft.update": {handle: messageUpdate},

		"message.delete":  {handle: messageDelete},
		"message.get":     {handle: messageGet},
		"message.getAll":  {handle: messageGetAll},
		"message.getMime": {mutate: messageGetMime},
		"message.move":    {handle: messageMove},
		"message.reply":   {handle: messageReply},
		"message.send":    {handle: messageSend},
		"message.update":  {handle: messageUpdate},

		"messageAttachment.add":      {handle: attachmentAdd},
		"messageAttachment.download": {mutate: attachmentDownload},
		"messageAttachment.get":      {handle: attachmentGet},
		"messageAttachment.getAll":   {handle: attachmentGetAll},

		"folder.create":      {handle: folderCreate},
		"folder.delete":      {handle: folderDelete},
		"folder.get":         {handle: folderGet},
		"folder.getAll":      {handle: folderGetAll},
		"folder.getChildren": {handle: folderGetChildren},
		"folder.update":      {handle: folderUpdate},

		"folderMessage.getAll": {handle: folderMessageGetAll},
	}
	declared := map[string]bool{}
	for resource, operations := range operationSchema {
		for _, operation := range operations {
			key := opKey(resource, operation)
			declared[key] = true
			def, ok := defs[key]
			if !ok {
				return nil, fmt.Errorf("node: no handler for declared operation %s", key)
			}
			if (def.handle == nil) == (def.mutate == nil) {
				return nil, fmt.Errorf("node: operation %s must bind exactly one of handle/mutate", key)
			}
		}
	}
	for key := range defs {
		if !declared[key] {
			return nil, fmt.Errorf("node: handler %s is not declared in the operation schema", key)
		}
	}
	return &registry{defs: defs}, nil
}

func (g *registry) lookup(resource, operation string) (definition, error) {
	def, ok := g.defs[opKey(resource, operation)]
	if !ok {
		return definition{}, fmt.Errorf("node: unsupported operation %s.%s", resource, operation)
	}
	return def, nil
}

// Operations lists the declared operations for a resource, sorted.
func Operations(resource string) []string {
	ops := append([]string(nil), operationSchema[resource]...)
	sort.Strings(ops)
	return ops
}

// Resources lists the declared resources, sorted.
func Resources() []string {
	out := make([]string, 0, len(operationSchema))
	for resource := range operationSchema {
		out = append(out, resource)
	}
	sort.Strings(out)
	return out
}
