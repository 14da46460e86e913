package main

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload papers into the library",
	Long: `Upload one or more papers (PDF or plain text) into the library.

Examples:
  paperdesk upload paper.pdf
  paperdesk upload notes.txt papers/*.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			part, err := w.CreateFormFile("files", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := part.Write(data); err != nil {
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %d file(s)...", len(args))
		resp, err := client.postMultipart(cmd.Context(), "/papers", &buf, w.FormDataContentType())
		if err != nil {
			return err
		}

		var result struct {
			BatchID string `json:"batch_id"`
			Results []struct {
				Filename string `json:"filename"`
				Success  bool   `json:"success"`
				ID       string `json:"id"`
				Title    string `json:"title"`
				Error    string `json:"error"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		var failed int
		for _, r := range result.Results {
			if r.Success {
				printSuccess("%s → %s (%s)", r.Filename, r.ID, r.Title)
			} else {
				failed++
				printError("%s: %s", r.Filename, r.Error)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(result.Results))
		}
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your papers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		noRetrieval, _ := cmd.Flags().GetBool("no-retrieval")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		useRetrieval := !noRetrieval
		resp, err := client.post(cmd.Context(), "/ask", map[string]any{
			"question":      question,
			"use_retrieval": useRetrieval,
		})
		if err != nil {
			return err
		}

		var answer struct {
			Text    string `json:"text"`
			Sources []struct {
				Title    string  `json:"title"`
				Distance float64 `json:"distance"`
			} `json:"sources"`
		}
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Sources:"))
			for i, s := range answer.Sources {
				fmt.Printf("  [%d] %s (distance %.3f)\n", i+1, s.Title, s.Distance)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("no-retrieval", false, "answer without searching the paper library")
}

// --- papers ---

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Manage the paper library",
}

var papersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored papers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/papers")
		if err != nil {
			return err
		}

		var papers []struct {
			ID       string `json:"id"`
			Metadata struct {
				Title     string `json:"title"`
				Filename  string `json:"filename"`
				WordCount int    `json:"word_count"`
			} `json:"metadata"`
		}
		if err := decodeJSON(resp, &papers); err != nil {
			return err
		}

		if len(papers) == 0 {
			fmt.Println("No papers in the library.")
			return nil
		}
		for _, p := range papers {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, p.ID),
				p.Metadata.Title,
				colorize(colorBold, fmt.Sprintf("(%d words)", p.Metadata.WordCount)),
			)
		}
		return nil
	},
}

var papersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a paper from the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/papers/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var papersSummaryCmd = &cobra.Command{
	Use:   "summary <id>",
	Short: "Summarize a stored paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating summary...")
		resp, err := client.post(cmd.Context(), "/papers/"+args[0]+"/summary", nil)
		if err != nil {
			return err
		}
		var summary struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}
		fmt.Println(colorize(colorBold, summary.Title))
		fmt.Println()
		fmt.Println(summary.Summary)
		return nil
	},
}

func init() {
	papersCmd.AddCommand(papersListCmd)
	papersCmd.AddCommand(papersDeleteCmd)
	papersCmd.AddCommand(papersSummaryCmd)
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest <topic>",
	Short: "Suggest research directions for a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Thinking...")
		resp, err := client.post(cmd.Context(), "/suggest", map[string]string{"topic": topic})
		if err != nil {
			return err
		}
		var result struct {
			Directions []string `json:"directions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		for _, d := range result.Directions {
			fmt.Printf("  • %s\n", d)
		}
		return nil
	},
}

// --- cite ---

var citeCmd = &cobra.Command{
	Use:   "cite",
	Short: "Manage citations",
}

var citeAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a citation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authorsStr, _ := cmd.Flags().GetString("authors")
		year, _ := cmd.Flags().GetInt("year")
		journal, _ := cmd.Flags().GetString("journal")
		doi, _ := cmd.Flags().GetString("doi")

		var authors []string
		if authorsStr != "" {
			authors = strings.Split(authorsStr, ";")
			for i := range authors {
				authors[i] = strings.TrimSpace(authors[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/citations", map[string]any{
			"title":   args[0],
			"authors": authors,
			"year":    year,
			"journal": journal,
			"doi":     doi,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Added citation %s", result["id"])
		return nil
	},
}

var citeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List citations",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("search")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/citations"
		if query != "" {
			path += "?q=" + url.QueryEscape(query)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var citations []struct {
			ID      string   `json:"id"`
			Title   string   `json:"title"`
			Authors []string `json:"authors"`
			Year    int      `json:"year"`
		}
		if err := decodeJSON(resp, &citations); err != nil {
			return err
		}
		if len(citations) == 0 {
			fmt.Println("No citations found.")
			return nil
		}
		for _, c := range citations {
			fmt.Printf("%s  %s (%d)  %s\n",
				colorize(colorCyan, c.ID),
				c.Title,
				c.Year,
				strings.Join(c.Authors, ", "),
			)
		}
		return nil
	},
}

var citeFormatCmd = &cobra.Command{
	Use:   "format <id>",
	Short: "Format a citation (apa, mla, chicago)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		style, _ := cmd.Flags().GetString("style")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/citations/"+args[0]+"/format?style="+url.QueryEscape(style))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Println(result["formatted"])
		return nil
	},
}

var citeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export citations (bibtex, csv)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/citations/export?format="+url.QueryEscape(format))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return err
		}

		if output != "" {
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return err
			}
			printSuccess("Exported citations to %s", output)
			return nil
		}
		fmt.Print(buf.String())
		return nil
	},
}

var citeRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a citation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/citations/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted citation %s", args[0])
		return nil
	},
}

func init() {
	citeAddCmd.Flags().String("authors", "", "semicolon-separated author list")
	citeAddCmd.Flags().Int("year", 0, "publication year")
	citeAddCmd.Flags().String("journal", "", "journal name")
	citeAddCmd.Flags().String("doi", "", "DOI")
	citeListCmd.Flags().String("search", "", "filter by title, author, or keyword")
	citeFormatCmd.Flags().String("style", "apa", "citation style")
	citeExportCmd.Flags().String("format", "bibtex", "export format")
	citeExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	citeCmd.AddCommand(citeAddCmd)
	citeCmd.AddCommand(citeListCmd)
	citeCmd.AddCommand(citeFormatCmd)
	citeCmd.AddCommand(citeExportCmd)
	citeCmd.AddCommand(citeRmCmd)
}

// --- deadline ---

var deadlineCmd = &cobra.Command{
	Use:   "deadline",
	Short: "Track research deadlines",
}

var deadlineAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a deadline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dueStr, _ := cmd.Flags().GetString("due")
		priority, _ := cmd.Flags().GetString("priority")
		category, _ := cmd.Flags().GetString("category")
		reminderDays, _ := cmd.Flags().GetInt("reminder")

		due, err := time.Parse("2006-01-02", dueStr)
		if err != nil {
			return fmt.Errorf("invalid --due date (want YYYY-MM-DD): %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/deadlines", map[string]any{
			"title":         args[0],
			"due":           due.Format(time.RFC3339),
			"priority":      priority,
			"category":      category,
			"reminder_days": reminderDays,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Added deadline %s", result["id"])
		return nil
	},
}

var deadlineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deadlines sorted by due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		upcoming, _ := cmd.Flags().GetInt("upcoming")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/deadlines"
		if upcoming > 0 {
			path = fmt.Sprintf("/deadlines/upcoming?days=%d", upcoming)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var deadlines []struct {
			ID       string    `json:"id"`
			Title    string    `json:"title"`
			Due      time.Time `json:"due"`
			Priority string    `json:"priority"`
			Category string    `json:"category"`
		}
		if err := decodeJSON(resp, &deadlines); err != nil {
			return err
		}
		if len(deadlines) == 0 {
			fmt.Println("No deadlines.")
			return nil
		}
		for _, d := range deadlines {
			days := int(time.Until(d.Due).Hours() / 24)
			label := fmt.Sprintf("in %d days", days)
			if days < 0 {
				label = colorize(colorRed, "overdue")
			} else if days <= 7 {
				label = colorize(colorYellow, label)
			}
			fmt.Printf("%s  %s  %s  [%s/%s]  %s\n",
				colorize(colorCyan, d.ID),
				d.Due.Format("2006-01-02"),
				d.Title,
				d.Priority,
				d.Category,
				label,
			)
		}
		return nil
	},
}

var deadlineRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a deadline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/deadlines/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted deadline %s", args[0])
		return nil
	},
}

func init() {
	deadlineAddCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	deadlineAddCmd.Flags().String("priority", "Medium", "priority (Low, Medium, High, Critical)")
	deadlineAddCmd.Flags().String("category", "Other", "category (Conference, Journal, Grant, Review, Other)")
	deadlineAddCmd.Flags().Int("reminder", 7, "reminder days before due")
	deadlineAddCmd.MarkFlagRequired("due")
	deadlineListCmd.Flags().Int("upcoming", 0, "show only deadlines due within N days")

	deadlineCmd.AddCommand(deadlineAddCmd)
	deadlineCmd.AddCommand(deadlineListCmd)
	deadlineCmd.AddCommand(deadlineRmCmd)
}
