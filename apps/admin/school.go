package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

const cmdTimeout = time.Minute

func (cli *commandLine) createSchool(ownerID string, profile user.Profile, ns school.NewSchool) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	elevated := core.Elevated()
	usr, err := cli.usrSvc.Ensure(ctx, elevated, ownerID, profile)
	if err != nil {
		return errors.Wrap(err, "ensuring owner")
	}
	sch, err := cli.schoolSvc.Provision(ctx, elevated, ns, usr.ID)
	if err != nil {
		return err
	}
	cli.schoolSvc.NotifyCreated(usr, sch)

	fmt.Fprintf(cli.out, "school %s created: https://%s\n", sch.ID, sch.Host(cli.schoolSvc.RootDomain()))
	return nil
}

func (cli *commandLine) listSchools(ownerID, search, xlsxPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	tenants, err := cli.schoolSvc.ListTenants(ctx, core.Elevated(), ownerID)
	if err != nil {
		return err
	}
	tenants = school.FilterTenants(tenants, search)

	if xlsxPath != "" {
		if err = exportTenants(xlsxPath, tenants); err != nil {
			return errors.Wrap(err, "exporting schools")
		}
		fmt.Fprintf(cli.out, "%d school(s) exported to %s\n", len(tenants), xlsxPath)
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tPLAN\tSTATUS\tUSERS\tCLASSES\tROLE")
	for _, tnt := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			tnt.ID, tnt.Name, tnt.URL, tnt.PlanType, tnt.Status, tnt.UserCount, tnt.MaxUsers, tnt.ClassCount, tnt.Role)
	}
	return w.Flush()
}

func (cli *commandLine) reconcile() error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	repaired, err := cli.schoolSvc.Reconcile(ctx, core.Elevated())
	for _, sch := range repaired {
		fmt.Fprintf(cli.out, "repaired school %s (%s)\n", sch.ID, sch.Subdomain)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d school(s) repaired\n", len(repaired))
	return nil
}

var tenantHeaders = []string{"ID", "Name", "Subdomain", "URL", "Plan", "Status", "Max users", "Users", "Classes", "Role", "Created at"}

// exportTenants writes tenants to a single-sheet spreadsheet at path.
func exportTenants(path string, tenants []school.Tenant) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	const sheet = "Schools"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return errors.Wrap(err, "creating sheet")
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	for col, header := range tenantHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err = f.SetCellValue(sheet, cell, header); err != nil {
			return errors.Wrapf(err, "setting header cell %s", cell)
		}
		if err = f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return errors.Wrap(err, "setting header style")
		}
	}

	for i, tnt := range tenants {
		row := []interface{}{
			tnt.ID, tnt.Name, tnt.Subdomain, tnt.URL, string(tnt.PlanType), string(tnt.Status),
			tnt.MaxUsers, tnt.UserCount, tnt.ClassCount, string(tnt.Role), tnt.CreatedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrap(err, "setting row "+strconv.Itoa(i+2))
		}
	}

	if err = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return errors.Wrap(err, "freezing header")
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err = f.WriteTo(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
