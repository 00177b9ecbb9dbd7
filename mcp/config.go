package mcp

import (
	"github.com/viant/scy"
)

// Config controls the Outlook node server behaviour and authentication.
type Config struct {
	// Azure AD application (client) ID for Microsoft Graph.
	ClientID string `json:"clientID"`
	// Tenant ID or "organizations"/"common".
	TenantID string `json:"tenantID"`
	// Optional authority/issuer URL; defaults to https://login.microsoftonline.com.
	Authority string `json:"authority,omitempty"`

	// StorageDir is where auth records/caches are persisted per account alias.
	StorageDir string `json:"storageDir,omitempty"`

	// CallbackBaseURL is used to generate absolute URLs for OOB flows.
	// Example: http://localhost:7788
	CallbackBaseURL string `json:"callbackBaseURL,omitempty"`

	// If true, return tool results in the `data` field instead of `text`.
	UseData bool `json:"useData,omitempty"`

	// AzureRef optionally points to an Azure OAuth2 client config stored as a
	// scy resource, EncodedResource syntax: "<URL>|<kmsKey>" (key optional).
	// The referenced content should unmarshal into github.com/viant/scy/cred.Azure.
	AzureRef scy.EncodedResource `json:"azureRef,omitempty"`
}
