package catalog

var defaultLevels = []Level{
	{ID: 1, Name: "The Firewall Gate", Concept: "Network Security Basics", XP: 100, Badge: "Firewall Master", Duration: "15-20 min", Difficulty: Easy, Prerequisites: []int{}},
	{ID: 2, Name: "Phisher's Trap", Concept: "Phishing Awareness", XP: 150, Badge: "Phish Buster", Duration: "10-15 min", Difficulty: Easy, Prerequisites: []int{1}},
	{ID: 3, Name: "Password Vault", Concept: "Password Security", XP: 200, Badge: "Vault Guardian", Duration: "20-25 min", Difficulty: Medium, Prerequisites: []int{1, 2}},
	{ID: 4, Name: "Encrypted Zone", Concept: "Encryption & Decryption", XP: 250, Badge: "Encryption Master", Duration: "25-30 min", Difficulty: Medium, Prerequisites: []int{3}},
	{ID: 5, Name: "The Port Scanner", Concept: "Networking & Ports", XP: 300, Badge: "Network Scout", Duration: "15-20 min", Difficulty: Medium, Prerequisites: []int{4}},
	{ID: 6, Name: "SQL Vault Breach", Concept: "SQL Injection Basics", XP: 350, Badge: "SQL Sentinel", Duration: "30-35 min", Difficulty: Hard, Prerequisites: []int{5}},
	{ID: 7, Name: "XSS Arena", Concept: "Cross-Site Scripting", XP: 400, Badge: "XSS Warrior", Duration: "25-30 min", Difficulty: Hard, Prerequisites: []int{6}},
	{ID: 8, Name: "Man-in-the-Middle", Concept: "Network Sniffing & HTTPS", XP: 450, Badge: "Packet Inspector", Duration: "35-40 min", Difficulty: Hard, Prerequisites: []int{7}},
	{ID: 9, Name: "Digital Forensics Lab", Concept: "Trace Investigation", XP: 500, Badge: "Cyber Detective", Duration: "40-45 min", Difficulty: Expert, Prerequisites: []int{8}},
	{ID: 10, Name: "The Cyber Fortress", Concept: "Final Challenge", XP: 1000, Badge: "Cyber Guardian", Duration: "60+ min", Difficulty: Expert, Prerequisites: []int{1, 2, 3, 4, 5, 6, 7, 8, 9}},
}

var defaultBadges = map[int]BadgeDef{
	1:  {ID: "firewall_master", Name: "Firewall Master", Description: "Completed the Firewall Gate level", Icon: "🛡️"},
	5:  {ID: "network_scout", Name: "Network Scout", Description: "Completed the Port Scanner level", Icon: "🌐"},
	10: {ID: "cyber_guardian", Name: "Cyber Guardian", Description: "Completed all levels", Icon: "🏆"},
}

var defaultCatalog = mustNew(defaultLevels, defaultBadges)

// Default returns the reference content: ten levels, three completion badges.
func Default() *Catalog { return defaultCatalog }

func mustNew(levels []Level, badges map[int]BadgeDef) *Catalog {
	c, err := New(levels, badges)
	if err != nil {
		panic(err)
	}
	return c
}
