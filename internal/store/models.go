package store

// Persistence models for the wall tables. Aggregate counters live on
// their own rows and are only ever moved inside row-locked transactions;
// clients consume the results, never recompute them.

// WallPost is the canonical post row.
type WallPost struct {
	PostID           string `gorm:"column:post_id;primaryKey;size:190;not null"`
	AuthorID         string `gorm:"column:author_id;size:190;index:idx_wall_posts_author"`
	PostType         string `gorm:"column:post_type;size:32;not null;default:'text'"`
	Content          string `gorm:"column:content;size:240;not null;default:''"`
	MetadataJSON     string `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_wall_posts_order,priority:2"`
	IsPinned         bool   `gorm:"column:is_pinned;not null;default:false;index:idx_wall_posts_order,priority:1"`
	LikeCount        int64  `gorm:"column:like_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (WallPost) TableName() string {
	return "wall_posts"
}

// WallLike records one viewer's like on one post.
type WallLike struct {
	PostID           string `gorm:"column:post_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_wall_likes_user"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (WallLike) TableName() string {
	return "wall_likes"
}

// WallReaction records one viewer's single reaction on one post.
type WallReaction struct {
	PostID           string `gorm:"column:post_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_wall_reactions_user"`
	Kind             string `gorm:"column:kind;size:32;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (WallReaction) TableName() string {
	return "wall_reactions"
}

// WallGift aggregates gifts of one kind sent to one post.
type WallGift struct {
	PostID string `gorm:"column:post_id;primaryKey;size:190;not null"`
	Kind   string `gorm:"column:kind;primaryKey;size:32;not null"`
	Count  int64  `gorm:"column:gift_count;not null;default:0"`
	Coins  int64  `gorm:"column:coin_total;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (WallGift) TableName() string {
	return "wall_gifts"
}

// UserProfile carries viewer display data, privilege flags and the coin
// ledger balances.
type UserProfile struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username         string `gorm:"column:username;size:320;not null;default:''"`
	AvatarURL        string `gorm:"column:avatar_url;size:512;not null;default:''"`
	IsAdmin          bool   `gorm:"column:is_admin;not null;default:false"`
	IsOfficer        bool   `gorm:"column:is_officer;not null;default:false"`
	CoinBalance      int64  `gorm:"column:coin_balance;not null;default:0"`
	EarnedCoins      int64  `gorm:"column:earned_coins;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (UserProfile) TableName() string {
	return "user_profiles"
}
