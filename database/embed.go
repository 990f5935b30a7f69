package database

import (
	"embed"
	"io/fs"
)

// EmbeddedMigrations, migrations/ dizinindeki SQL dosyalarını binary'ye gömer.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS

// Migrations, gömülü migration dosyalarını kök dizin olarak sunar.
func Migrations() fs.FS {
	sub, err := fs.Sub(EmbeddedMigrations, "migrations")
	if err != nil {
		// "migrations" derleme zamanında gömülü; buraya düşmek build hatasıdır.
		panic(err)
	}
	return sub
}
