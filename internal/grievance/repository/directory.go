package repository

import (
	"context"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
)

// Directory resolves principal display data for remarks and views.
type Directory interface {
	ReporterName(ctx context.Context, tx db.Transaction, reporterID int64) (string, error)
	AdminName(ctx context.Context, tx db.Transaction, adminID int64) (string, error)
	Resolver(ctx context.Context, tx db.Transaction, resolverID int64) (model.Resolver, error)
	ListResolvers(ctx context.Context) ([]model.Resolver, error)
}

type MySQLDirectory struct {
	db db.Database
}

func NewDirectory(database db.Database) *MySQLDirectory {
	return &MySQLDirectory{db: database}
}

func (d *MySQLDirectory) ReporterName(ctx context.Context, tx db.Transaction, reporterID int64) (string, error) {
	return d.name(ctx, tx, "SELECT name FROM reporters WHERE id = ?", reporterID)
}

func (d *MySQLDirectory) AdminName(ctx context.Context, tx db.Transaction, adminID int64) (string, error) {
	return d.name(ctx, tx, "SELECT name FROM admins WHERE id = ?", adminID)
}

func (d *MySQLDirectory) name(ctx context.Context, tx db.Transaction, query string, id int64) (string, error) {
	var name string
	if err := db.GetQuerier(d.db, tx).QueryRow(ctx, query, id).Scan(&name); err != nil {
		if db.IsNoRows(err) {
			return "", ErrPrincipalNotFound
		}
		return "", err
	}
	return name, nil
}

func (d *MySQLDirectory) Resolver(ctx context.Context, tx db.Transaction, resolverID int64) (model.Resolver, error) {
	var r model.Resolver
	err := db.GetQuerier(d.db, tx).QueryRow(ctx, "SELECT id, name, designation FROM resolvers WHERE id = ?", resolverID).
		Scan(&r.ID, &r.Name, &r.Designation)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Resolver{}, ErrResolverNotFound
		}
		return model.Resolver{}, err
	}
	return r, nil
}

func (d *MySQLDirectory) ListResolvers(ctx context.Context) ([]model.Resolver, error) {
	rows, err := d.db.Query(ctx, "SELECT id, name, designation FROM resolvers ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resolver
	for rows.Next() {
		var r model.Resolver
		if err := rows.Scan(&r.ID, &r.Name, &r.Designation); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
