package repo

import (
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/jinzhu/gorm/dialects/postgres"

	"github.com/moonwalker/verdict/pkg/rules"
)

const tblName = "rulesets"

type dbRuleSet struct {
	Name      string `gorm:"primary_key"`
	Rules     postgres.Jsonb
	UpdatedAt time.Time
}

func (d *dbRuleSet) TableName() string {
	return tblName
}

type postgresRuleSetRepo struct {
	db *gorm.DB
}

func NewPostgresRuleSetRepo(connectionString string) (RuleSetRepo, error) {
	db, err := gorm.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&dbRuleSet{}).Error; err != nil {
		db.Close()
		return nil, err
	}

	return &postgresRuleSetRepo{db}, nil
}

func (s *postgresRuleSetRepo) Name() string {
	return "postgres"
}

func (s *postgresRuleSetRepo) Get(name string) ([]*rules.Rule, error) {
	var row dbRuleSet
	res := s.db.First(&row, "name = ?", name)
	if res.RecordNotFound() {
		return nil, rulesetNotFound(name)
	}
	if res.Error != nil {
		return nil, res.Error
	}

	return decode(name+".json", row.Rules.RawMessage)
}

func (s *postgresRuleSetRepo) Save(name string, rs []*rules.Rule) error {
	buf, err := encode(name, rs)
	if err != nil {
		return err
	}

	return s.db.Save(&dbRuleSet{
		Name:  name,
		Rules: postgres.Jsonb{RawMessage: json.RawMessage(buf)},
	}).Error
}

func (s *postgresRuleSetRepo) Remove(name string) error {
	return s.db.Delete(&dbRuleSet{Name: name}).Error
}

func (s *postgresRuleSetRepo) Each(fn func(name string, rs []*rules.Rule) error) error {
	var rows []dbRuleSet
	if err := s.db.Order("name").Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		rs, err := decode(row.Name+".json", row.Rules.RawMessage)
		if skipMalformed(s.Name(), row.Name, err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(row.Name, rs); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresRuleSetRepo) Count() (count int) {
	s.db.Table(tblName).Count(&count)
	return
}

func (s *postgresRuleSetRepo) Close() {
	s.db.Close()
}
