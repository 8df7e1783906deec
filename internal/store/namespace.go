package store

// Namespace derives the stack namespace for an entity. The separator is
// not permitted in entity types so the mapping stays unambiguous.
func Namespace(entityType, entityID string) string {
	return entityType + "|" + entityID
}
