package config

import (
	"fmt"
	"strings"
)

// Category is one topical section of the site.
type Category struct {
	Name        string
	SectionID   int
	Description string
}

var categories = []Category{
	{Name: "politics", SectionID: 4954, Description: "Russian Politics & Diplomacy"},
	{Name: "world", SectionID: 4844, Description: "World"},
	{Name: "economy", SectionID: 4845, Description: "Business & Economy"},
	{Name: "defense", SectionID: 4953, Description: "Military & Defense"},
	{Name: "science", SectionID: 4957, Description: "Science & Space"},
	{Name: "emergencies", SectionID: 4992, Description: "Emergencies"},
	{Name: "society", SectionID: 4956, Description: "Society & Culture"},
	{Name: "pressreview", SectionID: 4981, Description: "Press Review"},
	{Name: "sports", SectionID: 4869, Description: "Sports"},
}

func LookupCategory(name string) (Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryNames returns every known category in table order.
func CategoryNames() []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}

// CategoryHelp renders the table shown in the CLI help epilog.
func CategoryHelp() string {
	var b strings.Builder
	b.WriteString("Available categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "  • %s -- %s\n", c.Name, c.Description)
	}
	return b.String()
}
