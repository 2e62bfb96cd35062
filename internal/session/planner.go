package session

import "github.com/bayy420-999/whatsapp-sender/internal/domain"

// PlanRemaining computes the contacts a resume run still has to send: those
// with no recorded result in the persisted session, matched by the raw phone
// value and kept in input order. Contacts with a failed result are NOT
// re-included; retrying failures requires a new bulk run.
func PlanRemaining(persisted *domain.BulkSendSession, contacts []domain.Contact) []domain.Contact {
	if persisted == nil {
		return contacts
	}

	attempted := persisted.AttemptedPhones()
	remaining := make([]domain.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if _, ok := attempted[contact.Phone]; ok {
			continue
		}
		remaining = append(remaining, contact)
	}
	return remaining
}
