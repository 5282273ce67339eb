package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/application"
	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func printCapabilities(snapshot domain.CapabilitySnapshot) {
	rows := [][2]string{
		{"contract_version", snapshot.ContractVersion},
		{"authenticated", strconv.FormatBool(snapshot.Authenticated)},
		{"mode", snapshot.Mode},
	}
	if snapshot.User != nil {
		rows = append(rows, [2]string{"user", snapshot.User.Username})
	}
	for _, feature := range sortedKeys(snapshot.Features) {
		rows = append(rows, [2]string{feature, strconv.FormatBool(snapshot.Features[feature])})
	}
	rows = append(rows,
		[2]string{"public_sources", strings.Join(snapshot.Sources.Public, ",")},
		[2]string{"private_sources", strings.Join(snapshot.Sources.Private, ",")},
		[2]string{"accessible_sources", strings.Join(snapshot.Sources.Accessible, ",")},
	)
	printKV(rows)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printSources(items []application.SourceSummary) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Name,
			string(item.Kind),
			strconv.FormatBool(item.IsPublic),
			strconv.FormatBool(item.AllowWriteBack),
			item.Description,
		})
	}
	printTable([]string{"ID", "NAME", "KIND", "PUBLIC", "WRITE_BACK", "DESCRIPTION"}, rows)
}

func printSourceMutation(item sourceMutationResult) {
	rows := [][2]string{
		{"id", strconv.FormatUint(uint64(item.Source.ID), 10)},
		{"name", item.Source.Name},
		{"kind", string(item.Source.Kind)},
		{"public", strconv.FormatBool(item.Source.IsPublic)},
	}
	if item.Runtime.Applied {
		rows = append(rows, [2]string{"runtime_properties", item.Runtime.PropertiesPath})
	}
	if item.Runtime.RestartRequired {
		rows = append(rows, [2]string{"restart_required", "true"})
	}
	printKV(rows)
}

func printSearchResults(items []domain.SearchResult) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Label,
			item.Source,
			strconv.FormatFloat(item.Confidence, 'f', 2, 64),
			item.Description,
		})
	}
	printTable([]string{"ID", "LABEL", "SOURCE", "CONFIDENCE", "DESCRIPTION"}, rows)
}

func printQueryResult(item domain.QueryResult) {
	fmt.Printf("status=%s source_type=%s total=%d\n", item.Status, item.SourceType, item.Total)
	if len(item.Results) == 0 {
		return
	}

	headers := make([]string, 0, len(item.Results[0]))
	for k := range item.Results[0] {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	rows := make([][]string, 0, len(item.Results))
	for _, result := range item.Results {
		row := make([]string, 0, len(headers))
		for _, h := range headers {
			row = append(row, fmt.Sprintf("%v", result[h]))
		}
		rows = append(rows, row)
	}
	printTable(headers, rows)
}

func printWriteBacks(items []domain.WriteBackRequest) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.SourceName,
			item.Operation,
			item.TableName,
			item.Status,
			item.RequestedBy,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "SOURCE", "OPERATION", "TABLE", "STATUS", "REQUESTED_BY", "CREATED_AT"}, rows)
}

func printWriteBackDetail(item domain.WriteBackRequest) {
	rows := [][2]string{
		{"id", strconv.FormatUint(uint64(item.ID), 10)},
		{"source", item.SourceName},
		{"operation", item.Operation},
		{"table", item.TableName},
		{"primary_key", item.PrimaryKey},
		{"status", item.Status},
		{"requested_by", item.RequestedBy},
		{"created_at", formatTime(item.CreatedAt)},
	}
	if item.ApprovedBy != "" {
		rows = append(rows, [2]string{"reviewed_by", item.ApprovedBy})
	}
	if item.ApprovedAt != nil {
		rows = append(rows, [2]string{"reviewed_at", formatTime(*item.ApprovedAt)})
	}
	if item.RejectionReason != "" {
		rows = append(rows, [2]string{"rejection_reason", item.RejectionReason})
	}
	printKV(rows)
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetType,
			formatMaybeUint(item.TargetID),
			item.ActorUsername,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
