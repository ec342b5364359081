// Package template turns a stored template plus user-supplied field values
// into a concrete, engine-ready document.
package template

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
)

// CredentialCreator provisions secrets in the external engine. Satisfied by
// *engine.Client.
type CredentialCreator interface {
	CreateCredential(ctx context.Context, name, credentialType string, data map[string]string) (string, error)
}

// ProvisionedCredential records one credential created in the engine during
// instantiation, so callers can persist the reference.
type ProvisionedCredential struct {
	Name       string
	Type       string
	ExternalID string
}

// Instantiator substitutes input values into template documents.
type Instantiator struct {
	creds CredentialCreator
}

// NewInstantiator creates an instantiator backed by the given credential
// provisioner.
func NewInstantiator(creds CredentialCreator) *Instantiator {
	return &Instantiator{creds: creds}
}

// Instantiate produces a concrete document from the template's stored
// definition and the supplied input values, matched by field label. Fields
// without a value are left untouched. Credential fields provision an engine
// credential and substitute the returned id, never the raw secret.
// credNameBase prefixes the generated credential names.
//
// Substitution failures are soft: a field that cannot be processed is
// logged and skipped, and instantiation continues. Calling Instantiate
// twice with identical arguments yields identical documents (credential
// fields aside, which mint a fresh engine credential per call).
func (i *Instantiator) Instantiate(ctx context.Context, tmpl *models.Template, inputs map[string]string, credNameBase string) (Document, []ProvisionedCredential, error) {
	doc := Document(tmpl.DefinitionJSON)

	fields, err := ParseSchema(tmpl.InputSchema)
	if err != nil {
		// Malformed schema skips substitution entirely rather than
		// failing the run.
		slog.Warn("Skipping substitution: malformed input schema",
			"template_id", tmpl.ID, "error", err)
		return doc, nil, nil
	}

	var provisioned []ProvisionedCredential
	for _, field := range fields {
		value := inputs[field.Label]
		if field.Placeholder == "" || value == "" {
			continue
		}

		if field.Type == FieldTypeCredential {
			credType := field.Label
			name := credNameBase + "_" + shortID()

			id, err := i.creds.CreateCredential(ctx, name, credType, map[string]string{
				secretKeyForLabel(field.Label): value,
			})
			if err != nil {
				slog.Warn("Skipping field: credential provisioning failed",
					"template_id", tmpl.ID, "label", field.Label, "error", err)
				continue
			}
			slog.Debug("Credential provisioned", "name", name, "type", credType, "credential_id", id)

			provisioned = append(provisioned, ProvisionedCredential{
				Name:       name,
				Type:       credType,
				ExternalID: id,
			})
			value = id
		}

		doc = doc.Replace(field.Placeholder, value)
	}

	return doc, provisioned, nil
}

// secretKeyForLabel derives the engine's secret-map key from the field
// label. Telegram credentials want accessToken; everything else apiKey.
func secretKeyForLabel(label string) string {
	if strings.Contains(strings.ToLower(label), "telegram") {
		return "accessToken"
	}
	return "apiKey"
}

func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
}
