package node

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	neturl "net/url"
	"strconv"
)

const defaultLimit = 100

// listQuery assembles the OData projection/filter options shared by the
// list-style operations.
func listQuery(r *run, i int) neturl.Values {
	query := neturl.Values{}
	if fields := r.params.String("select", i); fields != "" {
		query.Set("$select", fields)
	}
	if filter := r.params.String("filter", i); filter != "" {
		query.Set("$filter", filter)
	}
	return query
}

// fetchRecords runs a list request, paginating until exhaustion under
// returnAll, otherwise issuing a single bounded request with $top.
func fetchRecords(ctx context.Context, r *run, i int, path string) ([]map[string]any, error) {
	query := listQuery(r, i)
	if r.params.Bool("returnAll", i) {
		return r.client.FetchAll(ctx, "value", http.MethodGet, path, query, nil)
	}
	limit := r.params.Int("limit", i)
	if limit <= 0 {
		limit = defaultLimit
	}
	query.Set("$top", strconv.Itoa(limit))
	response, err := r.client.Call(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := response["value"].([]any)
	records := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if record, ok := entry.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// resultsFrom flattens list records into per-record results tagged with the
// originating item index.
func resultsFrom(records []map[string]any, i int) []Result {
	out := make([]Result, 0, len(records))
	for _, record := range records {
		out = append(out, Result{JSON: record, Index: i})
	}
	return out
}

func requireParam(r *run, i int, name string) (string, error) {
	v := r.params.String(name, i)
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// buildMessagePayload assembles a Graph message object from the common
// message parameters plus any additionalFields passthrough.
func buildMessagePayload(r *run, i int) map[string]any {
	msg := map[string]any{}
	if subject := r.params.String("subject", i); subject != "" {
		msg["subject"] = subject
	}
	if content := r.params.String("bodyContent", i); content != "" {
		contentType := r.params.String("bodyContentType", i)
		if contentType == "" {
			contentType = "Text"
		}
		msg["body"] = map[string]any{"contentType": contentType, "content": content}
	}
	if tos := r.params.Strings("toRecipients", i); len(tos) > 0 {
		msg["toRecipients"] = recipients(tos)
	}
	if ccs := r.params.Strings("ccRecipients", i); len(ccs) > 0 {
		msg["ccRecipients"] = recipients(ccs)
	}
	if bccs := r.params.Strings("bccRecipients", i); len(bccs) > 0 {
		msg["bccRecipients"] = recipients(bccs)
	}
	for k, v := range r.params.Object("additionalFields", i) {
		msg[k] = v
	}
	return msg
}

func recipients(addresses []string) []map[string]any {
	out := make([]map[string]any, 0, len(addresses))
	for _, address := range addresses {
		if address == "" {
			continue
		}
		out = append(out, map[string]any{"emailAddress": map[string]any{"address": address}})
	}
	return out
}

// inlineAttachments builds base64 fileAttachment entries from the item's
// named binary payloads (sendMail has no message id to stream against).
func inlineAttachments(r *run, i int) ([]map[string]any, error) {
	properties := r.params.Strings("attachments", i)
	if len(properties) == 0 {
		return nil, nil
	}
	item := r.items[i]
	out := make([]map[string]any, 0, len(properties))
	for _, property := range properties {
		bin, ok := item.Binary[property]
		if !ok {
			return nil, fmt.Errorf("item has no binary property %q", property)
		}
		if bin.FileName == "" {
			return nil, fmt.Errorf("binary property %q has no file name", property)
		}
		entry := map[string]any{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         bin.FileName,
			"contentBytes": base64.StdEncoding.EncodeToString(bin.Data),
		}
		if bin.MimeType != "" {
			entry["contentType"] = bin.MimeType
		}
		out = append(out, entry)
	}
	return out, nil
}
