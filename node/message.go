package node

import (
	"context"
	"fmt"
	"net/http"
)

func messageDelete(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	if _, err := r.client.Call(ctx, http.MethodDelete, "/messages/"+id, nil, nil); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}

func messageGet(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	response, err := r.client.Call(ctx, http.MethodGet, "/messages/"+id, listQuery(r, i), nil)
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}

func messageGetAll(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	path := "/messages"
	if folderID := r.params.String("folderId", i); folderID != "" {
		path = "/mailFolders/" + folderID + "/messages"
	}
	records, err := fetchRecords(ctx, r, i, path)
	if err != nil {
		return nil, false, err
	}
	if !r.params.Bool("downloadAttachments", i) {
		return resultsFrom(records, i), false, nil
	}
	// Bulk variant: download every listed message's attachments into binary
	// fields and return the combined batch as the whole node output.
	results, err := downloadMessageBatch(ctx, r, i, records)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// downloadMessageBatch enriches each listed message with its attachments as
// binary payloads keyed attachment_{n}.
func downloadMessageBatch(ctx context.Context, r *run, i int, records []map[string]any) ([]Result, error) {
	results := make([]Result, 0, len(records))
	for _, record := range records {
		result := Result{JSON: record, Index: i}
		hasAttachments, _ := record["hasAttachments"].(bool)
		id, _ := record["id"].(string)
		if hasAttachments && id != "" {
			attachments, err := r.client.FetchAll(ctx, "value", http.MethodGet, "/messages/"+id+"/attachments", nil, nil)
			if err != nil {
				return nil, err
			}
			binary := map[string]Binary{}
			for n, attachment := range attachments {
				attachmentID, _ := attachment["id"].(string)
				if attachmentID == "" {
					continue
				}
				meta, data, err := r.client.DownloadAttachment(ctx, id, attachmentID)
				if err != nil {
					return nil, err
				}
				binary[fmt.Sprintf("attachment_%d", n)] = Binary{Data: data, FileName: meta.Name, MimeType: meta.ContentType}
			}
			if len(binary) > 0 {
				result.Binary = binary
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// messageGetMime enriches the item in place with the raw MIME form of the
// message; pre-existing binary fields are preserved.
func messageGetMime(ctx context.Context, r *run, i int) error {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return err
	}
	data, contentType, err := r.client.GetMessageMime(ctx, id)
	if err != nil {
		return err
	}
	property := r.params.String("binaryPropertyName", i)
	if property == "" {
		property = "data"
	}
	r.items[i].SetBinary(property, Binary{
		Data:     data,
		FileName: id + ".eml",
		MimeType: contentType,
	})
	return nil
}

func messageMove(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	destination, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	body := map[string]any{"destinationId": destination}
	if _, err := r.client.Call(ctx, http.MethodPost, "/messages/"+id+"/move", nil, body); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}

// messageReply creates the reply draft, applies the reply fields, and sends
// it — the short call sequence the reply operation is defined as.
func messageReply(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	endpoint := "/messages/" + id + "/createReply"
	if r.params.String("replyType", i) == "replyAll" {
		endpoint = "/messages/" + id + "/createReplyAll"
	}
	var createBody any
	if comment := r.params.String("comment", i); comment != "" {
		createBody = map[string]any{"comment": comment}
	}
	reply, err := r.client.Call(ctx, http.MethodPost, endpoint, nil, createBody)
	if err != nil {
		return nil, false, err
	}
	draftID, _ := reply["id"].(string)
	if draftID == "" {
		return nil, false, fmt.Errorf("reply draft response carries no id")
	}
	if update := buildMessagePayload(r, i); len(update) > 0 {
		if _, err := r.client.Call(ctx, http.MethodPatch, "/messages/"+draftID, nil, update); err != nil {
			return nil, false, err
		}
	}
	if _, err := r.client.Call(ctx, http.MethodPost, "/messages/"+draftID+"/send", nil, nil); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: reply, Index: i}}, false, nil
}

func messageSend(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	msg := buildMessagePayload(r, i)
	attachments, err := inlineAttachments(r, i)
	if err != nil {
		return nil, false, err
	}
	if len(attachments) > 0 {
		msg["attachments"] = attachments
	}
	body := map[string]any{"message": msg, "saveToSentItems": true}
	if _, err := r.client.Call(ctx, http.MethodPost, "/sendMail", nil, body); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}

func messageUpdate(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	update := buildMessagePayload(r, i)
	for k, v := range r.params.Object("updateFields", i) {
		update[k] = v
	}
	response, err := r.client.Call(ctx, http.MethodPatch, "/messages/"+id, nil, update)
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}
