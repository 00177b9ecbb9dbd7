package node

import (
	"context"
	"fmt"
	"net/http"
)

// draftCreate posts the draft, then streams any named binary attachments to
// it through the transfer engine (large payloads go through a session).
func draftCreate(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	draft, err := r.client.Call(ctx, http.MethodPost, "/messages", nil, buildMessagePayload(r, i))
	if err != nil {
		return nil, false, err
	}
	properties := r.params.Strings("attachments", i)
	if len(properties) > 0 {
		draftID, _ := draft["id"].(string)
		if draftID == "" {
			return nil, false, fmt.Errorf("draft response carries no id")
		}
		item := r.items[i]
		for _, property := range properties {
			bin, ok := item.Binary[property]
			if !ok {
				return nil, false, fmt.Errorf("item has no binary property %q", property)
			}
			if bin.FileName == "" {
				return nil, false, fmt.Errorf("binary property %q has no file name", property)
			}
			if err := r.client.UploadAttachment(ctx, draftID, bin.FileName, bin.MimeType, bin.Data); err != nil {
				return nil, false, err
			}
		}
	}
	return []Result{{JSON: draft, Index: i}}, false, nil
}

// draftSend optionally patches recipients onto the draft before sending it.
func draftSend(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	if tos := r.params.Strings("toRecipients", i); len(tos) > 0 {
		update := map[string]any{"toRecipients": recipients(tos)}
		if _, err := r.client.Call(ctx, http.MethodPatch, "/messages/"+id, nil, update); err != nil {
			return nil, false, err
		}
	}
	if _, err := r.client.Call(ctx, http.MethodPost, "/messages/"+id+"/send", nil, nil); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}
