package node

import (
	"context"
	"fmt"
	"net/http"
)

// attachmentAdd streams the named binary payload onto the message via the
// transfer engine; the inline-vs-session decision happens there.
func attachmentAdd(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	property := r.params.String("binaryPropertyName", i)
	if property == "" {
		property = "data"
	}
	bin, ok := r.items[i].Binary[property]
	if !ok {
		return nil, false, fmt.Errorf("item has no binary property %q", property)
	}
	fileName := r.params.String("fileName", i)
	if fileName == "" {
		fileName = bin.FileName
	}
	if fileName == "" {
		return nil, false, fmt.Errorf("binary property %q has no file name and none was supplied", property)
	}
	if err := r.client.UploadAttachment(ctx, id, fileName, bin.MimeType, bin.Data); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}

// attachmentDownload enriches the item in place with the attachment's bytes
// under the configured binary property, keeping existing entries.
func attachmentDownload(ctx context.Context, r *run, i int) error {
	messageID, err := requireParam(r, i, "messageId")
	if err != nil {
		return err
	}
	attachmentID, err := requireParam(r, i, "attachmentId")
	if err != nil {
		return err
	}
	meta, data, err := r.client.DownloadAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return err
	}
	property := r.params.String("binaryPropertyName", i)
	if property == "" {
		property = "data"
	}
	r.items[i].SetBinary(property, Binary{
		Data:     data,
		FileName: meta.Name,
		MimeType: meta.ContentType,
	})
	return nil
}

func attachmentGet(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	messageID, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	attachmentID, err := requireParam(r, i, "attachmentId")
	if err != nil {
		return nil, false, err
	}
	path := "/messages/" + messageID + "/attachments/" + attachmentID
	response, err := r.client.Call(ctx, http.MethodGet, path, listQuery(r, i), nil)
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}

func attachmentGetAll(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	messageID, err := requireParam(r, i, "messageId")
	if err != nil {
		return nil, false, err
	}
	records, err := fetchRecords(ctx, r, i, "/messages/"+messageID+"/attachments")
	if err != nil {
		return nil, false, err
	}
	return resultsFrom(records, i), false, nil
}
