package auth

// Evaluate decides whether user satisfies req. It is pure and total: unknown
// requirement kinds deny non-admin users, a nil user is always denied.
//
// The admin identity is checked here and nowhere else.
func Evaluate(user *User, req Requirement) bool {
	if user == nil {
		return false
	}
	if user.Username == AdminUsername {
		return true
	}

	switch req.Kind {
	case "", RequireNone:
		return true
	case RequireAdmin:
		return false
	case RequireAllOf:
		for _, f := range req.Flags {
			if !user.Flags[f] {
				return false
			}
		}
		return true
	case RequireAnyOf:
		// An empty list means no requirement, same as all_of.
		if len(req.Flags) == 0 {
			return true
		}
		for _, f := range req.Flags {
			if user.Flags[f] {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Missing lists the flags of an all_of or any_of requirement that are not set
// on the user. It is used to explain denials and never grants anything.
func Missing(user *User, req Requirement) []Flag {
	if req.Kind != RequireAllOf && req.Kind != RequireAnyOf {
		return nil
	}
	var missing []Flag
	for _, f := range req.Flags {
		if !user.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
