package gorm

// DefaultSchemaTable is the metadata table name used when none is configured.
const DefaultSchemaTable = "schema_versions"

// SchemaRecord is the committed version of one managed table.
type SchemaRecord struct {
	Name    string `gorm:"column:table_name;size:64;uniqueIndex;not null"`
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Version int    `gorm:"column:version;not null"`
}

func (SchemaRecord) TableName() string { return DefaultSchemaTable }
