package domain

// User represents a user account.
type User struct {
	BaseModel
	Name         string  `gorm:"size:100;not null" json:"name"`
	Email        string  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Avatar       *string `gorm:"size:512" json:"avatar"`
	PasswordHash string  `gorm:"size:255" json:"-"`
}

// UserInput is the payload for creating a user and the form the console
// edits users with. Password fields are optional on update.
type UserInput struct {
	Name                 string `json:"name" form:"name" binding:"required,min=2,max=100"`
	Email                string `json:"email" form:"email" binding:"required,email"`
	Password             string `json:"password,omitempty" form:"password" binding:"omitempty,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation,omitempty" form:"password_confirmation" binding:"omitempty,eqfield=Password"`
}

// UserPatch is a partial user update. Nil fields are left unchanged.
type UserPatch struct {
	Name                 *string `json:"name" binding:"omitempty,min=2,max=100"`
	Email                *string `json:"email" binding:"omitempty,email"`
	Password             *string `json:"password" binding:"omitempty,min=8,max=72"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

// Credentials are submitted to log in.
type Credentials struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

// Registration is submitted to create an account and log in.
type Registration struct {
	Name     string `json:"name" form:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8,max=72"`
}

// ProfileInput is the editable part of the signed-in user's profile.
type ProfileInput struct {
	Name  string `json:"name" form:"name" binding:"omitempty,min=2,max=100"`
	Email string `json:"email" form:"email" binding:"omitempty,email"`
}

// AccessToken is the data returned by login, registration and refresh.
type AccessToken struct {
	AccessToken string `json:"access_token"`
}
