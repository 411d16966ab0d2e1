package storage

import "gorm.io/gorm/clause"

func clauseOnConflictNodes() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "platform"}, {Name: "username"}, {Name: "filter_key"}, {Name: "position_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"played_by", "updated_at"}),
	}
}

func clauseOnConflictGamesIgnore() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "owner"}, {Name: "platform"}, {Name: "platform_game_id"},
		},
		DoNothing: true,
	}
}
