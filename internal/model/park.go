package model

import (
	"time"
)

// Park is one archived park. Dir is the directory under the archive root
// holding its saves and images; FileName is the current save inside it.
type Park struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	GroupName string    `db:"groupname" json:"groupname"`
	GameMode  string    `db:"gamemode" json:"gamemode"`
	Date      time.Time `db:"date" json:"date"`
	Scenario  *string   `db:"scenario" json:"scenario"`
	Dir       *string   `db:"dir" json:"dir"`
	Thumbnail *string   `db:"thumbnail" json:"thumbnail"`
	LargeImg  *string   `db:"largeimg" json:"largeimg"`
	FileName  *string   `db:"filename" json:"filename"`
}

// DirName returns the archive directory, or "" when unset.
func (p *Park) DirName() string {
	if p.Dir == nil {
		return ""
	}
	return *p.Dir
}

// SaveFile returns the current save file name, or "" when unset.
func (p *Park) SaveFile() string {
	if p.FileName == nil {
		return ""
	}
	return *p.FileName
}

// Image returns the stored file name for kind, or "" when missing.
func (p *Park) Image(kind ImageKind) string {
	var v *string
	if kind == ImageFullsize {
		v = p.LargeImg
	} else {
		v = p.Thumbnail
	}
	if v == nil {
		return ""
	}
	return *v
}

type CreateParkParams struct {
	Name      string
	GroupName string
	GameMode  string
	Date      time.Time
	Scenario  string
	Dir       string
	FileName  string
}
