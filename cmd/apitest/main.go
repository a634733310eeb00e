// Command apitest runs a smoke test suite against a running planner server.
//
// Usage:
//
//	go run ./cmd/apitest -url http://localhost:8080
//	go run ./cmd/apitest -write -key $API_KEY
//
// Read-only checks run by default. -write also patches and clears a day far
// in the future, so it leaves no trace on current plans.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Response Types - Match the actual API response structure
// =============================================================================

type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Timezone string `json:"timezone"`
}

type Day struct {
	Date          string `json:"date"`
	Weekday       string `json:"weekday"`
	Status        string `json:"status"`
	Plan          string `json:"plan"`
	ManualSupport bool   `json:"manual_support"`
	RotaSupport   bool   `json:"rota_support"`
	OnSupport     bool   `json:"on_support"`
}

type Weekend struct {
	WeekStart  string `json:"week_start"`
	RotaActive bool   `json:"rota_active"`
	Saturday   *Day   `json:"saturday"`
	Sunday     *Day   `json:"sunday"`
}

type RotaCheck struct {
	Date      string `json:"date"`
	WeekStart string `json:"week_start"`
	Enabled   bool   `json:"enabled"`
	Active    bool   `json:"active"`
}

// =============================================================================
// Test Runner
// =============================================================================

type TestRunner struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	verbose      bool
	successCount int
	errorCount   int
	errors       []string
}

func NewTestRunner(baseURL, apiKey string, verbose bool) *TestRunner {
	return &TestRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		verbose: verbose,
	}
}

func (tr *TestRunner) Run(write bool) {
	fmt.Println("==============================================")
	fmt.Println("Weekend Planner API Test Suite")
	fmt.Println("==============================================")
	fmt.Printf("Base URL: %s\n", tr.baseURL)
	fmt.Println()

	tr.testHealth()
	tr.testWeekends()
	tr.testRotaCheck()
	tr.testSupportCalendar()
	tr.testEdgeCases()
	if write {
		tr.testDayRoundTrip()
	}

	tr.printSummary()
}

// =============================================================================
// Test Groups
// =============================================================================

func (tr *TestRunner) testHealth() {
	tr.printSection("Health Check")

	var health HealthResponse
	if err := tr.getData("/health", &health); err != nil {
		tr.recordError("Health", err.Error())
		return
	}

	if health.Status == "healthy" {
		tr.recordSuccess(fmt.Sprintf("Health check passed (timezone %s)", health.Timezone))
	} else {
		tr.recordError("Health", fmt.Sprintf("Unexpected status: %s", health.Status))
	}
}

func (tr *TestRunner) testWeekends() {
	tr.printSection("Weekend Listing")

	// 2023-10-25 is a Wednesday; the first weekend is 28/29 October.
	var weekends []Weekend
	if err := tr.getData("/api/v1/weekends?from=2023-10-25&weeks=4", &weekends); err != nil {
		tr.recordError("Weekends", err.Error())
		return
	}

	if len(weekends) != 4 {
		tr.recordError("Weekends", fmt.Sprintf("Expected 4 weekends, got %d", len(weekends)))
		return
	}
	tr.recordSuccess("Four weekends returned")

	first := weekends[0]
	if first.WeekStart == "2023-10-23" && first.Saturday != nil && first.Saturday.Date == "2023-10-28" {
		tr.recordSuccess("First weekend buckets to Monday 2023-10-23")
	} else {
		tr.recordError("Weekends", fmt.Sprintf("Unexpected first weekend: %+v", first))
	}

	if tr.verbose {
		for _, w := range weekends {
			tr.printWeekend(w)
		}
	}

	// Starting on a Sunday yields a weekend without its Saturday.
	var fromSunday []Weekend
	if err := tr.getData("/api/v1/weekends?from=2023-10-29&weeks=1", &fromSunday); err != nil {
		tr.recordError("Weekends (Sunday)", err.Error())
		return
	}
	if len(fromSunday) == 1 && fromSunday[0].Saturday == nil && fromSunday[0].Sunday != nil {
		tr.recordSuccess("Listing from a Sunday starts with that Sunday")
	} else {
		tr.recordError("Weekends (Sunday)", fmt.Sprintf("Unexpected result: %+v", fromSunday))
	}
}

func (tr *TestRunner) testRotaCheck() {
	tr.printSection("Support Rota Check")

	var first RotaCheck
	if err := tr.getData("/api/v1/recurrence/check?date=2023-10-25", &first); err != nil {
		tr.recordError("Rota check", err.Error())
		return
	}
	if first.WeekStart != "2023-10-23" {
		tr.recordError("Rota check", fmt.Sprintf("Expected week 2023-10-23, got %s", first.WeekStart))
		return
	}
	tr.recordSuccess("Wednesday maps to its Monday bucket")

	if !first.Enabled {
		tr.recordSuccess("Rota disabled on server; skipping cadence checks")
		return
	}

	// Same week, any day: the answer must not change.
	var sunday RotaCheck
	if err := tr.getData("/api/v1/recurrence/check?date=2023-10-29", &sunday); err != nil {
		tr.recordError("Rota check", err.Error())
		return
	}
	if sunday.Active == first.Active {
		tr.recordSuccess("Wednesday and Sunday of one week agree")
	} else {
		tr.recordError("Rota check", "Days of the same week disagree")
	}
}

func (tr *TestRunner) testSupportCalendar() {
	tr.printSection("Support Calendar")

	resp, err := tr.getRaw("/api/v1/support.ics?weeks=4")
	if err != nil {
		tr.recordError("ICS", err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		tr.recordError("ICS", fmt.Sprintf("HTTP %d", resp.StatusCode))
		return
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar") {
		tr.recordError("ICS", "Unexpected content type "+resp.Header.Get("Content-Type"))
		return
	}
	if !strings.Contains(string(body), "BEGIN:VCALENDAR") {
		tr.recordError("ICS", "Body is not a calendar")
		return
	}
	tr.recordSuccess(fmt.Sprintf("Calendar served with %d events", strings.Count(string(body), "BEGIN:VEVENT")))
}

func (tr *TestRunner) testEdgeCases() {
	tr.printSection("Edge Cases")

	cases := []struct {
		name string
		path string
		want int
	}{
		{"Weekday rejected", "/api/v1/days/2023-10-25", http.StatusBadRequest},
		{"Bad date rejected", "/api/v1/days/2023-02-30", http.StatusBadRequest},
		{"Slash date rejected", "/api/v1/recurrence/check?date=2023/10/25", http.StatusBadRequest},
		{"Horizon limit enforced", "/api/v1/weekends?weeks=53", http.StatusBadRequest},
		{"Missing date rejected", "/api/v1/recurrence/check", http.StatusBadRequest},
		{"Leap day weekend handled", "/api/v1/days/2020-02-29", http.StatusOK},
	}

	for _, tc := range cases {
		resp, err := tr.getRaw(tc.path)
		if err != nil {
			tr.recordError(tc.name, err.Error())
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == tc.want {
			tr.recordSuccess(tc.name)
		} else {
			tr.recordError(tc.name, fmt.Sprintf("Expected HTTP %d, got %d", tc.want, resp.StatusCode))
		}
	}
}

func (tr *TestRunner) testDayRoundTrip() {
	tr.printSection("Day Round Trip (write)")

	const date = "2099-01-03" // a Saturday
	path := "/api/v1/days/" + date

	if _, err := tr.send(http.MethodPatch, path, map[string]any{"status": "busy", "plan": "apitest"}); err != nil {
		tr.recordError("Patch day", err.Error())
		return
	}

	var day Day
	if err := tr.getData(path, &day); err != nil {
		tr.recordError("Get day", err.Error())
		return
	}
	if day.Status == "busy" && day.Plan == "apitest" {
		tr.recordSuccess("Patched day reads back")
	} else {
		tr.recordError("Get day", fmt.Sprintf("Unexpected day: %+v", day))
	}

	if _, err := tr.send(http.MethodDelete, path, nil); err != nil {
		tr.recordError("Clear day", err.Error())
		return
	}
	if err := tr.getData(path, &day); err == nil && day.Plan == "" && day.Status == "open" {
		tr.recordSuccess("Cleared day is back to defaults")
	} else {
		tr.recordError("Clear day", fmt.Sprintf("Unexpected day after clear: %+v", day))
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (tr *TestRunner) getData(path string, target any) error {
	resp, err := tr.getRaw(path)
	if err != nil {
		return err
	}
	return tr.decode(resp, target)
}

func (tr *TestRunner) send(method, path string, body any) (*APIResponse, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, tr.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tr.apiKey != "" {
		req.Header.Set("X-API-Key", tr.apiKey)
	}

	resp, err := tr.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var apiResp APIResponse
	if err := tr.decode(resp, &apiResp.Data); err != nil {
		return nil, err
	}
	return &apiResp, nil
}

func (tr *TestRunner) decode(resp *http.Response, target any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("parse JSON (HTTP %d): %w", resp.StatusCode, err)
	}

	if !apiResp.Success {
		errMsg := "unknown error"
		if apiResp.Error != nil {
			errMsg = apiResp.Error.Message
		}
		return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, errMsg)
	}

	return json.Unmarshal(apiResp.Data, target)
}

func (tr *TestRunner) getRaw(path string) (*http.Response, error) {
	return tr.client.Get(tr.baseURL + path)
}

func (tr *TestRunner) printSection(name string) {
	fmt.Println()
	fmt.Printf("--- %s ---\n", name)
	fmt.Println()
}

func (tr *TestRunner) printWeekend(w Weekend) {
	rota := ""
	if w.RotaActive {
		rota = " [rota]"
	}
	fmt.Printf("    Week of %s%s\n", w.WeekStart, rota)
	for _, d := range []*Day{w.Saturday, w.Sunday} {
		if d == nil {
			continue
		}
		fmt.Printf("      %s %s %s %s\n", d.Weekday, d.Date, d.Status, d.Plan)
	}
}

func (tr *TestRunner) recordSuccess(msg string) {
	tr.successCount++
	fmt.Printf("  ✓ %s\n", msg)
}

func (tr *TestRunner) recordError(context, msg string) {
	tr.errorCount++
	errStr := fmt.Sprintf("%s: %s", context, msg)
	tr.errors = append(tr.errors, errStr)
	fmt.Printf("  ✗ %s\n", errStr)
}

func (tr *TestRunner) printSummary() {
	fmt.Println()
	fmt.Println("==============================================")
	fmt.Println("Summary")
	fmt.Println("==============================================")
	fmt.Printf("  Passed: %d\n", tr.successCount)
	fmt.Printf("  Failed: %d\n", tr.errorCount)
	fmt.Println()

	if tr.errorCount > 0 {
		fmt.Println("Failures:")
		for _, err := range tr.errors {
			fmt.Printf("  • %s\n", err)
		}
		fmt.Println()
		fmt.Printf("Tests completed with %d failure(s)\n", tr.errorCount)
		return
	}
	fmt.Println("All tests passed! ✓")
}

// =============================================================================
// Main
// =============================================================================

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the API")
	apiKey := flag.String("key", os.Getenv("API_KEY"), "API key for write checks")
	write := flag.Bool("write", false, "Also run checks that modify data")
	verbose := flag.Bool("v", false, "Verbose output (show weekend details)")
	flag.Parse()

	// Check if server is reachable
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Error: Cannot connect to %s\n", *baseURL)
		fmt.Println("Make sure the API server is running.")
		os.Exit(1)
	}
	resp.Body.Close()

	runner := NewTestRunner(*baseURL, *apiKey, *verbose)
	runner.Run(*write)

	// Exit with error code if tests failed
	if runner.errorCount > 0 {
		os.Exit(1)
	}
}
