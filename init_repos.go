// Package main: Repository katmanı başlatma.
//
// initRepositories, tüm repository implementasyonlarını oluşturur.
// Her repository aynı *sql.DB bağlantısını alır ve interface döner.
package main

import (
	"database/sql"

	"github.com/akinalp/sohbet/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	User          repository.UserRepository
	Chat          repository.ChatRepository
	Message       repository.MessageRepository
	Circle        repository.CircleRepository
	CircleMessage repository.CircleMessageRepository
	Presence      repository.PresenceRepository
}

// initRepositories, veritabanı bağlantısından tüm repository'leri oluşturur.
//
// sql.DB thread-safe bir connection pool'dur, paylaşılması güvenlidir.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		User:          repository.NewSQLiteUserRepo(conn),
		Chat:          repository.NewSQLiteChatRepo(conn),
		Message:       repository.NewSQLiteMessageRepo(conn),
		Circle:        repository.NewSQLiteCircleRepo(conn),
		CircleMessage: repository.NewSQLiteCircleMessageRepo(conn),
		Presence:      repository.NewSQLitePresenceRepo(conn),
	}
}
