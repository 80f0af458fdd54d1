package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"finance-tracker/internal/app"
	"finance-tracker/internal/config"
	"finance-tracker/internal/finance"
	"finance-tracker/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

// inputDateLayout is the -date flag format.
const inputDateLayout = "2006-01-02T15:04"

const usage = `Usage: finance <command> -user <username> [-password <password>] [-db <db_path>] [flags]

Commands:
  register      create an account (-email)
  categories    list categories
  add-category  create a category (-name, -color, -type)
  add           record a transaction (-amount, -type, -desc, -category, -date)
  list          list transactions, newest first
  delete        delete a transaction (-id)
  summary       totals by category (-year, -month, -day)
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	user     string
	password string
	db       string

	email string

	name     string
	color    string
	typ      string
	amount   string
	desc     string
	category string
	date     string
	id       int64

	year  int
	month int
	day   int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}
	command := args[0]

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.user, "user", "", "Username")
	fs.StringVar(&o.password, "password", "", "Password (optional, will prompt if omitted)")
	fs.StringVar(&o.db, "db", "", "Path to database file (default $DB_PATH or finance_planner.db)")
	fs.StringVar(&o.email, "email", "", "Email address (register)")
	fs.StringVar(&o.name, "name", "", "Category name (add-category)")
	fs.StringVar(&o.color, "color", "", "Category colour as #RRGGBB (add-category)")
	fs.StringVar(&o.typ, "type", "", "income or expense")
	fs.StringVar(&o.amount, "amount", "", "Amount (add)")
	fs.StringVar(&o.desc, "desc", "", "Description (add)")
	fs.StringVar(&o.category, "category", "", "Category name (add)")
	fs.StringVar(&o.date, "date", "", "Date as "+inputDateLayout+" (add, default now)")
	fs.Int64Var(&o.id, "id", 0, "Transaction ID (delete)")
	fs.IntVar(&o.year, "year", 0, "Year (summary, default current)")
	fs.IntVar(&o.month, "month", 0, "Month 1-12 (summary, 0 = whole year)")
	fs.IntVar(&o.day, "day", 0, "Day of month (summary)")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	handler, ok := commands[command]
	if !ok && command != "register" {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	if o.user == "" {
		fmt.Fprint(stdout, usage)
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	if o.password == "" {
		var err error
		if o.password, err = promptPassword(stdin, stdout); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}
	if strings.TrimSpace(o.password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ConfigureLogging(stderr); err != nil {
		return err
	}
	if o.db != "" {
		cfg.DB.Path = o.db
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if command == "register" {
		user, err := a.Auth.Register(ctx, o.user, o.password, o.email)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
		return nil
	}

	if _, err := a.Auth.Login(ctx, o.user, o.password); err != nil {
		return err
	}
	if err := a.Data.Load(ctx); err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	return handler(ctx, a, o, stdout)
}

type handlerFunc func(ctx context.Context, a *app.App, o options, stdout io.Writer) error

var commands = map[string]handlerFunc{
	"categories":   listCategories,
	"add-category": addCategory,
	"add":          addTransaction,
	"list":         listTransactions,
	"delete":       deleteTransaction,
	"summary":      summarize,
}

func listCategories(_ context.Context, a *app.App, _ options, stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tCOLOR")
	for _, c := range a.Data.Categories() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Type, c.Name, c.Color)
	}
	return w.Flush()
}

func addCategory(ctx context.Context, a *app.App, o options, stdout io.Writer) error {
	typ, err := models.ParseTransactionType(o.typ)
	if err != nil {
		return err
	}
	c := &models.Category{Name: strings.TrimSpace(o.name), Color: o.color, Type: typ}
	if err := a.Data.AddCategory(ctx, c); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	fmt.Fprintf(stdout, "Category %s created with ID %d\n", c.Name, c.ID)
	return nil
}

func addTransaction(ctx context.Context, a *app.App, o options, stdout io.Writer) error {
	t, err := parseTransaction(a.Data, o)
	if err != nil {
		return err
	}
	if err := a.Data.AddTransaction(ctx, t); err != nil {
		return fmt.Errorf("failed to add transaction: %w", err)
	}
	fmt.Fprintf(stdout, "Transaction %d added: %s %s\n", t.ID, formatAmount(t.Amount), t.Description)
	return nil
}

func parseTransaction(data *finance.Service, o options) (*models.Transaction, error) {
	typ, err := models.ParseTransactionType(o.typ)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(o.amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", o.amount)
	}

	desc := strings.TrimSpace(o.desc)
	if desc == "" {
		desc = "Income"
		if typ == models.Expense {
			desc = "Expense"
		}
	}

	date := time.Now()
	if o.date != "" {
		if date, err = time.ParseInLocation(inputDateLayout, o.date, time.Local); err != nil {
			return nil, fmt.Errorf("invalid date %q, want %s", o.date, inputDateLayout)
		}
	}

	t := &models.Transaction{
		Description: desc,
		Amount:      amount.InexactFloat64(),
		Date:        date,
		Type:        typ,
	}
	if o.category != "" {
		c, ok := data.CategoryByName(o.category, typ)
		if !ok {
			return nil, fmt.Errorf("no %s category named %q", strings.ToLower(string(typ)), o.category)
		}
		t.CategoryID = &c.ID
	}
	return t, nil
}

func listTransactions(_ context.Context, a *app.App, _ options, stdout io.Writer) error {
	now := time.Now()
	var day finance.Period
	for _, t := range a.Data.Transactions() {
		if d := finance.DayOf(t.Date); d != day {
			day = d
			fmt.Fprintln(stdout, dayTitle(day, now))
		}
		category := finance.UncategorizedName
		if t.Category != nil {
			category = t.Category.Name
		}
		fmt.Fprintf(stdout, "  #%d  %s  %12s  %-16s %s\n", t.ID, t.Date.Format("15:04"), formatAmount(t.Amount), category, t.Description)
	}
	return nil
}

func deleteTransaction(ctx context.Context, a *app.App, o options, stdout io.Writer) error {
	if o.id <= 0 {
		return fmt.Errorf("missing required flags: id")
	}
	if err := a.Data.RemoveTransaction(ctx, o.id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	fmt.Fprintf(stdout, "Transaction %d deleted\n", o.id)
	return nil
}

func summarize(_ context.Context, a *app.App, o options, stdout io.Writer) error {
	p := finance.Period{Year: o.year, Month: o.month, Day: o.day}
	if p.Year == 0 {
		p.Year = time.Now().Year()
	}
	if p.Month < 0 || p.Month > 12 || p.Day < 0 || p.Day > 31 {
		return fmt.Errorf("invalid period %d-%d-%d", p.Year, p.Month, p.Day)
	}

	s := a.Data.Summary(p)
	fmt.Fprintf(stdout, "Period:   %s\n", formatPeriod(p))
	fmt.Fprintf(stdout, "Income:   %s\n", s.TotalIncome.StringFixed(2))
	fmt.Fprintf(stdout, "Expenses: %s\n", s.TotalExpense.StringFixed(2))
	fmt.Fprintf(stdout, "Balance:  %s\n", s.Balance.StringFixed(2))

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, section := range []struct {
		title  string
		slices []finance.Slice
	}{{"INCOME", s.Income}, {"EXPENSE", s.Expense}} {
		if len(section.slices) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\t\t\t\t\n", section.title)
		for _, sl := range section.slices {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s%%\t\n", sl.Category, sl.Total.StringFixed(2), sl.Count, sl.Percentage.StringFixed(2))
		}
	}
	return w.Flush()
}

func formatPeriod(p finance.Period) string {
	switch {
	case p.Month == 0:
		return strconv.Itoa(p.Year)
	case p.Day == 0:
		return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.Local).Format("January 2006")
	default:
		return time.Date(p.Year, time.Month(p.Month), p.Day, 0, 0, 0, 0, time.Local).Format("2 January 2006")
	}
}

func formatAmount(amount float64) string {
	d := decimal.NewFromFloat(amount)
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

// dayTitle names a list section: TODAY and YESTERDAY relative to now, the
// full date otherwise.
func dayTitle(day finance.Period, now time.Time) string {
	switch day {
	case finance.DayOf(now):
		return "TODAY"
	case finance.DayOf(now.AddDate(0, 0, -1)):
		return "YESTERDAY"
	}
	date := time.Date(day.Year, time.Month(day.Month), day.Day, 0, 0, 0, 0, time.Local)
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}

// promptPassword asks for the password on stdout. A terminal stdin reads
// without echo; anything else supplies the first line.
func promptPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	fmt.Fprint(stdout, "Password: ")
	defer fmt.Fprintln(stdout)

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		return string(pw), err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
