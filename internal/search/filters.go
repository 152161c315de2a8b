package search

import (
	"fmt"

	"cleanplate/internal/client"
	pstrings "cleanplate/pkg/platform/strings"
)

// Any is the label of the "no filter" choice for borough, grade and cuisine.
const Any = "Any"

// Sort orders search results. SortRelevance sends no parameter.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortDateDesc  Sort = "date_desc"
	SortGradeAsc  Sort = "grade_asc"
	SortNameAsc   Sort = "name_asc"
	SortNameDesc  Sort = "name_desc"
)

// Sorts lists the sort choices in display order.
var Sorts = []Sort{SortRelevance, SortDateDesc, SortGradeAsc, SortNameAsc, SortNameDesc}

// Label is the display name of s.
func (s Sort) Label() string {
	switch s {
	case SortDateDesc:
		return "Date (Newest)"
	case SortGradeAsc:
		return "Grade (A-C)"
	case SortNameAsc:
		return "Name (A-Z)"
	case SortNameDesc:
		return "Name (Z-A)"
	default:
		return "Relevance"
	}
}

// Boroughs lists the borough filter values accepted by the service.
var Boroughs = []string{"Manhattan", "Brooklyn", "Queens", "Bronx", "Staten Island"}

// Grades lists the grade filter values accepted by the service.
var Grades = []string{"A", "B", "C", "P"}

// GradeLabel is the display name of a grade filter value.
func GradeLabel(code string) string {
	switch code {
	case "", Any:
		return Any
	case "P":
		return "Grade Pending"
	default:
		return "Grade " + code
	}
}

// Cuisines lists the cuisine descriptions offered as filter values.
var Cuisines = []string{
	"African", "American", "Armenian", "Asian/Asian Fusion", "Australian",
	"Bagels/Pretzels", "Bakery Products/Desserts", "Bangladeshi", "Barbecue", "Basque",
	"Bottled Beverages", "Brazilian", "Cajun", "Californian", "Caribbean",
	"Chicken", "Chilean", "Chimichurri", "Chinese", "Chinese/Cuban",
	"Chinese/Japanese", "Coffee/Tea", "Continental", "Creole", "Creole/Cajun",
	"Czech", "Donuts", "Eastern European", "Egyptian", "English",
	"Ethiopian", "Filipino", "French", "Frozen Desserts", "Fruits/Vegetables",
	"Fusion", "German", "Greek", "Hamburgers", "Haute Cuisine",
	"Hawaiian", "Hotdogs", "Hotdogs/Pretzels", "Indian", "Indonesian",
	"Iranian", "Irish", "Italian", "Japanese", "Jewish/Kosher",
	"Juice, Smoothies, Fruit Salads", "Korean", "Latin American", "Lebanese", "Mediterranean",
	"Mexican", "Middle Eastern", "Moroccan", "New American", "New French",
	"Not Listed/Not Applicable", "Nuts/Confectionary", "Other", "Pakistani", "Pancakes/Waffles",
	"Peruvian", "Pizza", "Polish", "Portuguese", "Russian",
	"Salads", "Sandwiches", "Sandwiches/Salads/Mixed Buffet", "Scandinavian", "Seafood",
	"Soul Food", "Soups", "Soups/Salads/Sandwiches", "Southeast Asian", "Southwestern",
	"Spanish", "Steakhouse", "Tapas", "Tex-Mex", "Thai",
	"Turkish", "Vegan", "Vegetarian",
}

// Filters narrows a search. Zero values mean no filter.
type Filters struct {
	Sort    Sort
	Borough string
	Grade   string
	Cuisine string
}

// Params builds the request for one page of results.
func (f Filters) Params(term string, page, perPage int) client.SearchParams {
	p := client.SearchParams{
		Term:    term,
		Page:    page,
		PerPage: perPage,
		Borough: f.Borough,
		Grade:   f.Grade,
		Cuisine: f.Cuisine,
	}
	if f.Sort != SortRelevance {
		p.Sort = string(f.Sort)
	}
	return p
}

// ParseSort accepts a sort value case-insensitively; empty means relevance.
func ParseSort(s string) (Sort, error) {
	if s == "" {
		return SortRelevance, nil
	}
	for _, v := range Sorts {
		if _, ok := pstrings.MatchFold(s, string(v)); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// ParseBorough canonicalizes a borough; empty or "Any" clears the filter.
func ParseBorough(s string) (string, error) {
	return parseOption("borough", s, Boroughs)
}

// ParseGrade canonicalizes a grade; empty or "Any" clears the filter.
func ParseGrade(s string) (string, error) {
	return parseOption("grade", s, Grades)
}

// ParseCuisine canonicalizes a cuisine; empty or "Any" clears the filter.
func ParseCuisine(s string) (string, error) {
	return parseOption("cuisine", s, Cuisines)
}

func parseOption(name, s string, options []string) (string, error) {
	if _, ok := pstrings.MatchFold(s, "", Any); ok {
		return "", nil
	}
	if v, ok := pstrings.MatchFold(s, options...); ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown %s %q", name, s)
}
