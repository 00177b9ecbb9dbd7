package node

import (
	"context"
	"net/http"
)

func folderCreate(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	displayName, err := requireParam(r, i, "displayName")
	if err != nil {
		return nil, false, err
	}
	path := "/mailFolders"
	if parent := r.params.String("parentFolderId", i); parent != "" {
		path = "/mailFolders/" + parent + "/childFolders"
	}
	response, err := r.client.Call(ctx, http.MethodPost, path, nil, map[string]any{"displayName": displayName})
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}

func folderDelete(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	if _, err := r.client.Call(ctx, http.MethodDelete, "/mailFolders/"+id, nil, nil); err != nil {
		return nil, false, err
	}
	return []Result{{JSON: map[string]any{"success": true}, Index: i}}, false, nil
}

func folderGet(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	response, err := r.client.Call(ctx, http.MethodGet, "/mailFolders/"+id, listQuery(r, i), nil)
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}

func folderGetAll(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	records, err := fetchRecords(ctx, r, i, "/mailFolders")
	if err != nil {
		return nil, false, err
	}
	return resultsFrom(records, i), false, nil
}

func folderGetChildren(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	records, err := fetchRecords(ctx, r, i, "/mailFolders/"+id+"/childFolders")
	if err != nil {
		return nil, false, err
	}
	return resultsFrom(records, i), false, nil
}

func folderUpdate(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	update := map[string]any{}
	for k, v := range r.params.Object("updateFields", i) {
		update[k] = v
	}
	if displayName := r.params.String("displayName", i); displayName != "" {
		update["displayName"] = displayName
	}
	response, err := r.client.Call(ctx, http.MethodPatch, "/mailFolders/"+id, nil, update)
	if err != nil {
		return nil, false, err
	}
	return []Result{{JSON: response, Index: i}}, false, nil
}

func folderMessageGetAll(ctx context.Context, r *run, i int) ([]Result, bool, error) {
	id, err := requireParam(r, i, "folderId")
	if err != nil {
		return nil, false, err
	}
	records, err := fetchRecords(ctx, r, i, "/mailFolders/"+id+"/messages")
	if err != nil {
		return nil, false, err
	}
	return resultsFrom(records, i), false, nil
}
