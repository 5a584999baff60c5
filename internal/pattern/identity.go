package pattern

// IdentityAttributes returns the attribute subset that determines entity
// equality for typ, per the GLOSSARY's "identity attributes". Most STIX
// entity types have a single natural key; process is the well-known
// exception (spec.md §9: "STIX 2.0 provides no stable process identifier").
//
// supportsID toggles whether the datasource in question exposes a stable
// "id" field for the type — when it does, id alone is the identity set,
// since it subsumes any secondary attributes.
func IdentityAttributes(typ string, supportsID bool) []string {
	if supportsID {
		return []string{"id"}
	}

	if attrs, ok := wellKnownIdentity[typ]; ok {
		return attrs
	}

	// Default: fall back to id even without confirmed support, since most
	// entity types in practice do carry one; callers that know better pass
	// the well-known set above.
	return []string{"id"}
}

// wellKnownIdentity holds the identity-attribute sets for entity types whose
// identity is not simply "id" on id-less datasources. process is the
// textbook ambiguous case the spec calls out by name.
var wellKnownIdentity = map[string][]string{
	"process": {"pid", "name", "command_line"},
	"network-traffic": {
		"src_ref.value", "dst_ref.value", "src_port", "dst_port", "protocols",
	},
	"file":           {"name", "hashes.SHA-256"},
	"user-account":   {"user_id", "account_login"},
	"windows-registry-key": {"key"},
}
