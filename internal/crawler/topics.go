package crawler

// DefaultTopics is the catalogue seeded into empty stores.
func DefaultTopics() []Topic {
	return []Topic{
		{ID: "ai", Name: "Artificial Intelligence", Icon: "🤖", Description: "Machine learning, language models and applied AI."},
		{ID: "startups", Name: "Startups & VC", Icon: "🚀", Description: "Company building, fundraising and venture capital."},
		{ID: "marketing", Name: "Marketing & Growth", Icon: "📈", Description: "Acquisition, retention and brand strategy."},
		{ID: "finance", Name: "Finance & Markets", Icon: "💰", Description: "Markets, macroeconomics and personal finance."},
		{ID: "health", Name: "Health & Wellness", Icon: "❤️", Description: "Medicine, fitness and wellbeing research."},
		{ID: "tech", Name: "Technology", Icon: "💻", Description: "Software, hardware and the tech industry."},
		{ID: "science", Name: "Science & Research", Icon: "🔬", Description: "Scientific discoveries and academic research."},
		{ID: "productivity", Name: "Productivity", Icon: "⚡", Description: "Tools and habits for getting work done."},
	}
}
