package finance

import "finance-tracker/internal/models"

var defaultCategories = []models.Category{
	{Name: "Salary", Color: "#00FFA3", Type: models.Income},
	{Name: "Bonus", Color: "#00D9FF", Type: models.Income},
	{Name: "Scholarship", Color: "#ADFF00", Type: models.Income},
	{Name: "Groceries", Color: "#00FFA3", Type: models.Expense},
	{Name: "Clothing", Color: "#00D9FF", Type: models.Expense},
	{Name: "Digital goods", Color: "#FFEB3B", Type: models.Expense},
}

// DefaultCategories returns the categories a new user starts with. The names
// are English translations of the Russian default set: Зарплатная плата,
// Премия, Стипендия, Продукты питания, Одежда and Цифровые товары. Colours
// are unchanged.
func DefaultCategories() []models.Category {
	out := make([]models.Category, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}
