// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/securevote/models"
)

// BOM makes spreadsheet tools read the file as UTF-8.
const BOM = "\ufeff"

const (
	timeLayout      = "2006-01-02 15:04:05 MST"
	noVotesNote     = "No individual votes recorded on this node."
	unknownOption   = "Unknown or deleted option"
	noDeadlineLabel = "None"
)

// VoteLink is the address voters open to reach a survey.
func VoteLink(baseURL, surveyID string) string {
	return strings.TrimRight(baseURL, "/") + "/#/vote/" + surveyID
}

// Filename is a download name for a survey's CSV export.
func Filename(survey models.Survey) string {
	return "survey_" + survey.ID + ".csv"
}

// WriteCSV writes the results report for survey. votes is the node's
// ledger; only records for this survey are listed, newest first. Relative
// times are computed against now.
func WriteCSV(w io.Writer, survey models.Survey, votes []models.VoteRecord, now time.Time) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	total := survey.TotalVotes()

	status := "Inactive"
	if survey.Active {
		status = "Active"
	}
	deadline := noDeadlineLabel
	if survey.Deadline != nil {
		deadline = formatTime(time.UnixMilli(*survey.Deadline), now)
	}

	rows := [][]string{
		{"SURVEY REPORT - SECUREVOTE"},
		{""},
		{"--- SUMMARY ---"},
		{"Title", survey.Title},
		{"Description", survey.Description},
		{"Total votes", strconv.Itoa(total)},
		{"Status", status},
		{"Created", formatTime(time.UnixMilli(survey.CreatedAt), now)},
		{"Deadline", deadline},
		{""},
		{"RESULTS"},
		{"Option", "Votes", "Percentage"},
	}

	for _, o := range survey.Options {
		rows = append(rows, []string{o.Text, strconv.Itoa(o.Votes), percentage(o.Votes, total)})
	}

	rows = append(rows,
		[]string{""},
		[]string{"--- VOTE DETAIL (AUDIT) ---"},
		[]string{"Time", "Client ID", "Option"},
	)

	detail := surveyVotes(votes, survey.ID)
	if len(detail) == 0 {
		rows = append(rows, []string{noVotesNote, "", ""})
	}
	for _, v := range detail {
		text := unknownOption
		if o, ok := survey.Option(v.OptionID); ok {
			text = o.Text
		}
		rows = append(rows, []string{formatTime(time.UnixMilli(v.Timestamp), now), v.VoterIP, text})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func surveyVotes(votes []models.VoteRecord, surveyID string) []models.VoteRecord {
	var out []models.VoteRecord
	for _, v := range votes {
		if v.SurveyID == surveyID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

func percentage(votes, total int) string {
	if total == 0 {
		return "0%"
	}
	return strconv.FormatFloat(float64(votes)*100/float64(total), 'f', 2, 64) + "%"
}

func formatTime(t, now time.Time) string {
	return fmt.Sprintf("%s (%s)", t.UTC().Format(timeLayout), humanize.RelTime(t, now, "ago", "from now"))
}
