package classify

// DefaultProfiles returns the built-in application profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{AppName: "coding", Keywords: []string{
			"code", "function", "bug", "error", "api", "golang", "python",
			"javascript", "typescript", "sql", "database", "deploy", "compile",
		}},
		{AppName: "crm", Keywords: []string{
			"customer", "lead", "deal", "pipeline", "contact", "crm", "sales", "client",
		}},
		{AppName: "productivity", Keywords: []string{
			"task", "todo", "schedule", "calendar", "meeting", "deadline",
			"priority", "gtd", "inbox", "project",
		}},
		{AppName: "writing", Keywords: []string{
			"essay", "article", "blog", "draft", "rewrite", "grammar", "story", "poem",
		}},
		{AppName: "finance", Keywords: []string{
			"invoice", "budget", "tax", "revenue", "expense", "payment", "accounting",
		}},
		{AppName: "learning", Keywords: []string{
			"explain", "learn", "course", "tutorial", "study", "exam", "homework",
		}},
		{AppName: "travel", Keywords: []string{
			"trip", "flight", "hotel", "itinerary", "travel", "vacation", "visa",
		}},
	}
}
