package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/poller"
	"github.com/brojonat/signwatch/service/transfer"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type rowView struct {
	Hash       string
	ShortHash  string
	TxURL      string
	From       string
	ShortFrom  string
	FromURL    string
	To         string
	ShortTo    string
	ToURL      string
	Amount     string
	Symbol     string
	Share      string
	Time       string
	IsLeadHash bool
}

type statView struct {
	Label string
	Value string
}

type dashboardPage struct {
	ContractAddress string
	ContractShort   string
	ContractURL     string

	Stats []statView
	Rows  []rowView

	State      dashboard.ViewState
	PageSizes  []int
	TotalPages int
	StartRow   int
	EndRow     int
	TotalRows  int
	HasPrev    bool
	HasNext    bool

	Error         string
	Notice        string
	Notifications int
	AutoRefresh   bool
	PollInterval  string
	Fetching      bool
	LastUpdate    string
	ExportURL     string
}

// handleDashboardPage renders the dashboard for the shared view session.
// GET /
func handleDashboardPage(renderer *TemplateRenderer, session *viewSession, store *dashboard.Store, p Poller, contract, explorerBase string, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := store.Snapshot()
		state := session.Dispatch(dashboard.DataReplaced{Version: snap.Version})

		view := dashboard.Apply(snap.Records, state.Query)
		page := dashboard.Paginate(view, state.PageSize, state.Page)
		stats := dashboard.ComputeStats(snap, view, time.Now())

		data := dashboardPage{
			ContractAddress: contract,
			ContractShort:   transfer.Shorten(contract, 6, 4),
			ContractURL:     transfer.AddressURL(explorerBase, contract),
			Stats:           statViews(stats),
			Rows:            make([]rowView, len(page.Items)),
			State:           state,
			PageSizes:       dashboard.PageSizes,
			TotalPages:      page.TotalPages,
			TotalRows:       page.TotalItems,
			HasPrev:         state.Page > 1,
			HasNext:         state.Page < page.TotalPages,
			Error:           snap.Error,
			Notice:          session.TakeNotice(),
			Notifications:   snap.Notifications,
			AutoRefresh:     p.AutoRefresh(),
			PollInterval:    p.Interval().String(),
			Fetching:        p.State() == poller.StateFetching,
			LastUpdate:      snap.LastUpdate.In(loc).Format("15:04:05 MST"),
			ExportURL:       exportURL(state.Query),
		}
		if len(page.Items) > 0 {
			data.StartRow = page.StartIndex + 1
			data.EndRow = page.EndIndex
		}

		for i, rec := range page.Items {
			data.Rows[i] = rowToView(rec, snap, explorerBase, loc)
		}

		if err := renderer.Render(w, "dashboard.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// handleViewAction applies a form action to the shared view session and
// redirects back to the dashboard.
// POST /view
func handleViewAction(session *viewSession, store *dashboard.Store, p Poller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		switch r.PostForm.Get("action") {
		case "filters":
			q := dashboard.Query{
				Search:    strings.TrimSpace(r.PostForm.Get("search")),
				MinAmount: strings.TrimSpace(r.PostForm.Get("min_amount")),
				MaxAmount: strings.TrimSpace(r.PostForm.Get("max_amount")),
				SortBy:    dashboard.SortField(r.PostForm.Get("sort_by")),
				SortOrder: dashboard.SortOrder(r.PostForm.Get("sort_order")),
			}
			if err := q.Validate(); err != nil {
				session.SetNotice(err.Error())
				break
			}
			actions := []dashboard.Action{
				dashboard.SetSearch{Text: q.Search},
				dashboard.SetMinAmount{Value: q.MinAmount},
				dashboard.SetMaxAmount{Value: q.MaxAmount},
				dashboard.SetSort{By: q.SortBy, Order: q.SortOrder},
			}
			if size, err := strconv.Atoi(r.PostForm.Get("page_size")); err == nil {
				actions = append(actions, dashboard.SetPageSize{Size: size})
			}
			session.Dispatch(actions...)

		case "page":
			page, err := strconv.Atoi(r.PostForm.Get("page"))
			if err != nil {
				session.SetNotice("invalid page")
				break
			}
			state := session.State()
			view := dashboard.Apply(store.Snapshot().Records, state.Query)
			session.Dispatch(dashboard.SetPage{
				Page:       page,
				TotalPages: dashboard.TotalPages(len(view), state.PageSize),
			})

		case "reset":
			session.Dispatch(dashboard.ResetFilters{})

		case "refresh":
			if err := p.RefreshNow(r.Context()); err != nil {
				session.SetNotice(err.Error())
			}

		case "auto_refresh":
			p.SetAutoRefresh(r.PostForm.Get("enabled") == "true")

		case "clear_notifications":
			store.ClearNotifications()

		case "dismiss_error":
			store.DismissError()

		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}

		logger.Debug("view action applied", "action", r.PostForm.Get("action"))
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// handleFavicon serves a small inline SVG icon.
func handleFavicon() http.HandlerFunc {
	const icon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><circle cx="16" cy="16" r="14" fill="#FF5722"/><text x="16" y="22" font-size="16" text-anchor="middle" fill="#fff" font-family="sans-serif">S</text></svg>`
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(icon))
	}
}

func statViews(st dashboard.Stats) []statView {
	return []statView{
		{Label: "Total Transactions", Value: strconv.Itoa(st.TotalTransactions)},
		{Label: "Total Volume", Value: st.TotalVolume.StringFixed(2)},
		{Label: "Average Amount", Value: st.AverageAmount.StringFixed(2)},
		{Label: "Largest Transaction", Value: st.LargestTransaction.StringFixed(2)},
		{Label: "Last Update", Value: strconv.FormatInt(st.SecondsSinceUpdate, 10) + "s"},
		{Label: "Avg Rate", Value: strconv.FormatFloat(st.AvgRatePerHour, 'f', 1, 64) + "/h"},
	}
}

func rowToView(r transfer.Record, snap dashboard.Snapshot, explorerBase string, loc *time.Location) rowView {
	amount := r.Amount()
	return rowView{
		Hash:       r.Hash,
		ShortHash:  transfer.Shorten(r.Hash, 10, 8),
		TxURL:      r.TxURL(explorerBase),
		From:       r.From,
		ShortFrom:  transfer.Shorten(r.From, 6, 4),
		FromURL:    transfer.AddressURL(explorerBase, r.From),
		To:         r.To,
		ShortTo:    transfer.Shorten(r.To, 6, 4),
		ToURL:      transfer.AddressURL(explorerBase, r.To),
		Amount:     amount.StringFixed(4),
		Symbol:     r.TokenSymbol,
		Share:      decimal.NewFromFloat(dashboard.ShareOfVolume(amount, snap.TotalVolume)).StringFixed(2) + "%",
		Time:       r.Time().In(loc).Format("2006-01-02 15:04:05"),
		IsLeadHash: r.Hash == snap.LeadHash,
	}
}

func exportURL(q dashboard.Query) string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.MinAmount != "" {
		v.Set("min_amount", q.MinAmount)
	}
	if q.MaxAmount != "" {
		v.Set("max_amount", q.MaxAmount)
	}
	v.Set("sort_by", string(q.SortBy))
	v.Set("sort_order", string(q.SortOrder))
	return "/api/v1/export.csv?" + v.Encode()
}
