package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"medrelief/internal/app"
	"medrelief/internal/controller"
	"medrelief/internal/models"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load back office organizations from a CSV file",
		Long: `Loads back office organizations from a CSV file with a header row.

Columns: province, city, name (required), address, source, emergency, verified,
contacts ("name:phone;name:phone"), demands ("name:amount;name:amount").
Organizations already submitted by users are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: importOrganizations,
	})
}

func importOrganizations(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := readOrganizationsCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	a, err := app.NewApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.Service().ImportOrganizations(ctx, records)
	fmt.Fprintf(cmd.OutOrStdout(), "created: %d, replaced: %d, skipped: %d\n", res.Created, res.Replaced, res.Skipped)
	return err
}

var requiredColumns = []string{"province", "city", "name"}

func readOrganizationsCSV(r io.Reader) ([]models.Organization, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	records := []models.Organization{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		get := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		org, err := parseOrganizationRow(get)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, org)
	}
	return records, nil
}

func parseOrganizationRow(get func(string) string) (models.Organization, error) {
	address, source := get("address"), get("source")
	req := controller.OrganizationReq{
		Province: get("province"),
		City:     get("city"),
		Name:     get("name"),
		Address:  &address,
		Source:   &source,
	}

	var err error
	if s := get("emergency"); len(s) > 0 {
		emergency, err := strconv.Atoi(s)
		if err != nil {
			return models.Organization{}, fmt.Errorf("invalid emergency %q", s)
		}
		req.Emergency = &emergency
	}

	verified := false
	if s := get("verified"); len(s) > 0 {
		if verified, err = strconv.ParseBool(s); err != nil {
			return models.Organization{}, fmt.Errorf("invalid verified %q", s)
		}
	}

	for _, pair := range splitList(get("contacts")) {
		name, phone := splitPair(pair)
		req.Contacts = append(req.Contacts, controller.ContactReq{Name: name, Phone: phone})
	}

	for _, pair := range splitList(get("demands")) {
		name, amount := splitPair(pair)
		d := controller.DemandReq{Name: name}
		if len(amount) > 0 {
			if d.Amount, err = strconv.Atoi(amount); err != nil {
				return models.Organization{}, fmt.Errorf("invalid demand amount %q", pair)
			}
		}
		req.Demands = append(req.Demands, d)
	}

	if err = req.Validate(); err != nil {
		return models.Organization{}, err
	}

	org := req.ToModel()
	org.Verified = verified
	return org, nil
}

func splitList(s string) []string {
	res := []string{}
	for _, item := range strings.Split(s, ";") {
		if item = strings.TrimSpace(item); len(item) > 0 {
			res = append(res, item)
		}
	}
	return res
}

// splitPair splits "name:value" on the last colon.
func splitPair(s string) (string, string) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
}
