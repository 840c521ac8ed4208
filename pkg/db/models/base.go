package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the caller did not provide one. Postgres
// also defaults ids via gen_random_uuid(); the hook keeps sqlite in step.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
