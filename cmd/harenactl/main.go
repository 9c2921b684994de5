// Command harenactl manages what the API deliberately does not expose:
// institutions, their email domains and professor invite tokens.
//
// USAGE:
//
//	harenactl institution add -name Unicamp [-domain unicamp.br]
//	harenactl institution list
//	harenactl domain add -institution <id> -domain dac.unicamp.br
//	harenactl token professor -institution <id> [-days 7]
//	harenactl tokens list -institution <id>
//
// It reads the same configuration as the server (.env, HARENA_CONFIG,
// DB_PATH, ...) but only uses the database section.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/mundorum/harena/internal/access"
	"github.com/mundorum/harena/internal/config"
	"github.com/mundorum/harena/internal/repository"
	"github.com/mundorum/harena/internal/repository/sqldb"
	"github.com/mundorum/harena/internal/service"
)

const usage = `usage:
  harenactl institution add -name NAME [-domain DOMAIN]
  harenactl institution list
  harenactl domain add -institution ID -domain DOMAIN
  harenactl token professor -institution ID [-days N]
  harenactl tokens list -institution ID`

var errUsage = errors.New(usage)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	db, err := sqldb.Open(sqldb.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(context.Background(), os.Args[1:], db, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		db.Close()
		os.Exit(2)
	}
}

// cli holds the services the commands drive.
type cli struct {
	institutions *service.InstitutionService
	invites      *service.InviteService
	out          io.Writer
}

func run(ctx context.Context, args []string, store repository.Store, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}

	// Errors only; command output goes to out.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	c := &cli{
		institutions: service.NewInstitutionService(store, nil, service.WithLogger(logger)),
		invites:      service.NewInviteService(store, access.NewEvaluator(store), service.WithLogger(logger)),
		out:          out,
	}

	cmd, rest := args[0]+" "+args[1], args[2:]
	switch cmd {
	case "institution add":
		return c.addInstitution(ctx, rest)
	case "institution list":
		return c.listInstitutions(ctx)
	case "domain add":
		return c.addDomain(ctx, rest)
	case "token professor":
		return c.issueProfessorToken(ctx, rest)
	case "tokens list":
		return c.listProfessorTokens(ctx, rest)
	}
	return errUsage
}

// newFlags returns a FlagSet that reports errors instead of exiting.
func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) addInstitution(ctx context.Context, args []string) error {
	fs := newFlags("institution add")
	name := fs.String("name", "", "institution name")
	domain := fs.String("domain", "", "email domain to claim (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inst, err := c.institutions.Create(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "institution %s created (%s)\n", inst.ID, inst.Name)

	if *domain != "" {
		d, err := c.institutions.AddDomain(ctx, inst.ID, *domain)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "domain %s added\n", d.Name)
	}
	return nil
}

func (c *cli) listInstitutions(ctx context.Context) error {
	list, err := c.institutions.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED")
	for _, inst := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", inst.ID, inst.Name, inst.CreatedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}

func (c *cli) addDomain(ctx context.Context, args []string) error {
	fs := newFlags("domain add")
	instID := fs.String("institution", "", "institution id")
	domain := fs.String("domain", "", "email domain")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := c.institutions.AddDomain(ctx, *instID, *domain)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "domain %s added\n", d.Name)
	return nil
}

func (c *cli) issueProfessorToken(ctx context.Context, args []string) error {
	fs := newFlags("token professor")
	instID := fs.String("institution", "", "institution id")
	days := fs.Int("days", 7, "days until the token expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := c.invites.IssueProfessorToken(ctx, *instID, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\nexpires %s\n", token.Token, token.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (c *cli) listProfessorTokens(ctx context.Context, args []string) error {
	fs := newFlags("tokens list")
	instID := fs.String("institution", "", "institution id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tokens, err := c.invites.ListProfessorTokens(ctx, *instID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tEXPIRES\tVALID\tREDEEMED")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", t.Token, t.ExpiresAt.Format(time.RFC3339), t.Valid, len(t.RedeemedBy))
	}
	return tw.Flush()
}
