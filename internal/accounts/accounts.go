// Package accounts declares the account model: accounts and the identities,
// attributes, credentials and permissions attached to them.
package accounts

import (
	"github.com/thebtf/schemaflow/internal/migrate"
	"github.com/thebtf/schemaflow/pkg/models"
)

// Table names.
const (
	AccountsTable    = "accounts"
	IdentitiesTable  = "identities"
	AttributesTable  = "account_attributes"
	CredentialsTable = "credentials"
	PermissionsTable = "permissions"
)

func accountRef(nullable bool) models.ColumnSpec {
	col := models.Integer("account_id").References(AccountsTable, "id", models.ActionNoAction)
	if !nullable {
		col = col.NotNull()
	}
	return col
}

// Accounts is the accounts table.
func Accounts() *migrate.VersionedTable {
	return migrate.NewVersionedTable(models.NewTable(AccountsTable,
		models.PrimaryKeyColumn("id"),
		models.String("username", 32).NotNull().WithUnique(),
	), 1)
}

// Identities maps a (source, identity) pair to an account. Unlinked
// identities have no account.
func Identities() *migrate.VersionedTable {
	return migrate.NewVersionedTable(models.NewTable(IdentitiesTable,
		models.PrimaryKeyColumn("id"),
		accountRef(true),
		models.String("source", 16).NotNull(),
		models.String("identity", 64).NotNull(),
		models.DateTime("created").WithDefault("CURRENT_TIMESTAMP"),
	).WithUnique("source", "identity"), 1)
}

// Attributes holds free-form name/value pairs per account.
func Attributes() *migrate.VersionedTable {
	return migrate.NewVersionedTable(models.NewTable(AttributesTable,
		models.PrimaryKeyColumn("id"),
		accountRef(false),
		models.String("name", 32).NotNull(),
		models.String("value", 128).NotNull(),
	).WithUnique("account_id", "name"), 1)
}

// Credentials holds authentication secrets, optionally scoped to a source.
func Credentials() *migrate.VersionedTable {
	return migrate.NewVersionedTable(models.NewTable(CredentialsTable,
		models.PrimaryKeyColumn("id"),
		accountRef(false),
		models.String("source", 16),
		models.String("method", 16).NotNull(),
		models.String("credential", 256).NotNull(),
	), 1)
}

// Permissions grants or revokes named permissions per account.
func Permissions() *migrate.VersionedTable {
	return migrate.NewVersionedTable(models.NewTable(PermissionsTable,
		models.PrimaryKeyColumn("id"),
		accountRef(false),
		models.String("name", 16).NotNull(),
		models.String("value", 4).NotNull(),
	).WithUnique("account_id", "name"), 1)
}

// Register adds every account table to c. Registration order does not
// matter; the engine orders tables by foreign key.
func Register(c *migrate.Catalog) error {
	return c.Register(
		Identities(),
		Attributes(),
		Credentials(),
		Permissions(),
		Accounts(),
	)
}
